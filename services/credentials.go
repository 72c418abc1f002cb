package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"orchctl/common"
	"orchctl/utils"
)

// Credential is what a run body gets to work with.
type Credential struct {
	Host common.Host
	// KeyFile is the staged private key, or "" when the host record has
	// none and the engine should use its ambient credentials.
	KeyFile string
}

// RunBody uses a resolved credential. It must not keep KeyFile beyond its
// own return.
type RunBody func(ctx context.Context, cred Credential) (*RunResult, error)

// CredentialManager resolves targets and owns the lifetime of the
// ephemeral key file staged for one run.
type CredentialManager struct {
	hosts  HostResolver
	keyDir string
	log    *common.Logger
	remove func(string) error
}

func NewCredentialManager(cfg *common.Config, hosts HostResolver, log *common.Logger) *CredentialManager {
	return &CredentialManager{hosts: hosts, keyDir: cfg.KeyDir, log: log, remove: os.Remove}
}

// WithResolvedCredential resolves target, stages its private key (if any)
// into an owner-only file, and runs body. The key file is removed on
// every way out of body: normal return, error return and panic. A failed
// removal is logged and attached to the result as CleanupErr; it never
// replaces body's own outcome.
//
// An unknown target fails with common.ErrTargetNotFound before anything
// touches the filesystem, and body is not called.
func (m *CredentialManager) WithResolvedCredential(ctx context.Context, target string, body RunBody) (res *RunResult, err error) {
	host, err := m.hosts.FindHost(ctx, target)
	if err != nil {
		return nil, err
	}
	cred := Credential{Host: host}

	if !host.HasKey() {
		m.log.Infof("credentials: %s has no private key; engine uses its default credentials", host.Name())
		return body(ctx, cred)
	}

	path, err := m.stage(ctx, host)
	if err != nil {
		return nil, err
	}
	cred.KeyFile = path

	defer func() {
		cerr := m.release(path)
		if cerr == nil {
			return
		}
		m.log.Warnf("credentials: %v", cerr)
		if res != nil {
			res.CleanupErr = cerr
		}
	}()

	return body(ctx, cred)
}

func (m *CredentialManager) stage(ctx context.Context, host common.Host) (string, error) {
	m.log.AddSecret(host.PrivateKey)

	// OpenSSH refuses key files without a trailing newline.
	material := make([]byte, 0, len(host.PrivateKey)+1)
	material = append(material, host.PrivateKey...)
	if !bytes.HasSuffix(material, []byte("\n")) {
		material = append(material, '\n')
	}
	defer utils.Zero(material)

	if fp, err := utils.KeyFingerprint(material); err == nil {
		m.log.Infof("credentials: staging key %s for %s", fp, host.Name())
	} else {
		m.log.Warnf("credentials: key material for %s is not a parseable SSH key, staging it as-is: %v", host.Name(), err)
	}

	pattern := "orchctl-key-*"
	if id := RunID(ctx); id != "" {
		pattern = "orchctl-" + id + "-*"
	}
	f, err := os.CreateTemp(m.keyDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create key file: %w", err)
	}
	path := f.Name()

	fail := func(step string, err error) (string, error) {
		f.Close()
		if rerr := m.remove(path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			m.log.Warnf("credentials: %v", &common.CleanupError{Path: path, Err: rerr})
		}
		return "", fmt.Errorf("%s key file: %w", step, err)
	}
	if err := f.Chmod(0o600); err != nil {
		return fail("chmod", err)
	}
	if _, err := f.Write(material); err != nil {
		return fail("write", err)
	}
	if err := f.Close(); err != nil {
		return fail("close", err)
	}
	m.log.Debugf("credentials: staged key file %s", path)
	return path, nil
}

func (m *CredentialManager) release(path string) error {
	if err := m.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &common.CleanupError{Path: path, Err: err}
	}
	m.log.Debugf("credentials: removed key file %s", path)
	return nil
}
