// common/types.go - Shared types used across packages
package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultUser is the login user when a host record carries none.
const DefaultUser = "root"

// Scalar is a JSON value the fleet API sends either as a string or as a
// number (ids, project ids). null decodes to "". Anything else is an error.
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Scalar(v)
		return nil
	}
	if b[0] == '-' || (b[0] >= '0' && b[0] <= '9') {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*s = Scalar(n.String())
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", b)
}

func (s Scalar) String() string { return string(s) }

// Host is one managed server as returned by GET /api/servers/.
type Host struct {
	ID          Scalar `json:"id,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	ProjectID   Scalar `json:"project_id,omitempty"`
	Provisioned bool   `json:"provisioned"`
	User        string `json:"user,omitempty"`
	// PrivateKey is only populated on detail fetches; never log it.
	PrivateKey string `json:"private_key,omitempty"`
}

// Name is the inventory name of the host: hostname, falling back to the IP.
func (h Host) Name() string {
	if h.Hostname != "" {
		return h.Hostname
	}
	return h.IPAddress
}

// Addressable reports whether the host can be put in an inventory at all.
func (h Host) Addressable() bool {
	return h.Name() != ""
}

// LoginUser returns the configured user or DefaultUser.
func (h Host) LoginUser() string {
	if h.User != "" {
		return h.User
	}
	return DefaultUser
}

// Matches reports whether an operator-supplied target names this host.
func (h Host) Matches(target string) bool {
	if target == "" {
		return false
	}
	return h.Hostname == target || h.IPAddress == target
}

// HasKey reports whether the record carries private key material.
func (h Host) HasKey() bool {
	return h.PrivateKey != ""
}

// RunRecord is one journal entry for an automation run.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	Target       string    `json:"target"`
	Playbook     string    `json:"playbook"`
	ExitCode     int       `json:"exit_code"`
	Succeeded    bool      `json:"succeeded"`
	KeyStaged    bool      `json:"key_staged"`
	CleanupError string    `json:"cleanup_error,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
