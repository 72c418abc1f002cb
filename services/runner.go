package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"orchctl/common"
	"orchctl/utils"
)

// RunResult is the outcome of one automation run.
type RunResult struct {
	RunID    string
	Target   string
	Playbook string
	ExitCode int
	Stdout   string
	Stderr   string
	// KeyFile is where the key was staged; it no longer exists once the
	// result is returned.
	KeyFile string
	// CleanupErr is a failed key-file removal. The run outcome stands.
	CleanupErr error
}

// Invocation is everything the engine needs for one run.
type Invocation struct {
	InventorySource string
	PlaybookPath    string
	Limit           string
	KeyFile         string
}

// ExecResult is the raw engine outcome.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Engine executes one playbook run. A non-zero exit is reported in
// ExecResult, not as an error; errors mean the engine never ran to
// completion.
type Engine interface {
	Execute(ctx context.Context, inv Invocation) (ExecResult, error)
}

// AnsibleEngine runs ansible-playbook as a blocking subprocess.
type AnsibleEngine struct {
	bin string
	env []string
	cfg *common.Config
	log *common.Logger
}

func NewAnsibleEngine(cfg *common.Config, log *common.Logger) *AnsibleEngine {
	return &AnsibleEngine{bin: cfg.AnsiblePlaybook, env: cfg.Environ, cfg: cfg, log: log}
}

// Command builds the subprocess for inv. The API settings are passed on
// explicitly so the engine's inventory callback talks to the same API.
//
// When a key file is supplied, host key checking is switched off: new
// hosts are provisioned on first contact and have no known_hosts entry.
func (e *AnsibleEngine) Command(inv Invocation) utils.Command {
	args := []string{"-i", inv.InventorySource, inv.PlaybookPath, "--limit", inv.Limit}
	overrides := map[string]string{}
	if e.cfg.APIURL != "" {
		overrides[common.EnvAPIURL] = e.cfg.APIURL
	}
	if e.cfg.APIToken != "" {
		overrides[common.EnvAPIToken] = e.cfg.APIToken
	}
	if inv.KeyFile != "" {
		args = append(args, "--private-key", inv.KeyFile)
		overrides["ANSIBLE_HOST_KEY_CHECKING"] = "False"
	}
	return utils.Command{Bin: e.bin, Args: args, Env: utils.MergeEnv(e.env, overrides)}
}

func (e *AnsibleEngine) Execute(ctx context.Context, inv Invocation) (ExecResult, error) {
	cmd := e.Command(inv)
	e.log.Infof("engine: %s %s", cmd.Bin, strings.Join(cmd.Args, " "))

	res := utils.RunCommand(ctx, cmd)
	e.log.LogCommandOutput("engine stdout", res.Stdout)
	e.log.LogCommandOutput("engine stderr", res.Stderr)

	out := ExecResult{ExitCode: res.ExitCode, Stdout: string(res.Stdout), Stderr: string(res.Stderr)}
	if res.Err != nil {
		return out, fmt.Errorf("run %s: %w", cmd.Bin, res.Err)
	}
	return out, nil
}

// Runner is the execution orchestrator: resolve, stage, run, record.
type Runner struct {
	cfg     *common.Config
	creds   *CredentialManager
	engine  Engine
	journal RunJournal
	log     *common.Logger

	now   func() time.Time
	newID func() string
}

// NewRunner wires a runner. A nil journal records nothing.
func NewRunner(cfg *common.Config, creds *CredentialManager, engine Engine, journal RunJournal, log *common.Logger) *Runner {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Runner{
		cfg:     cfg,
		creds:   creds,
		engine:  engine,
		journal: journal,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// PlaybookPath joins name under the playbook directory. Operators are
// trusted; the name is not validated beyond the join.
func (r *Runner) PlaybookPath(name string) string {
	return filepath.Join(r.cfg.PlaybookDir, name)
}

// Run executes playbook against exactly target. A non-zero engine exit is
// a *common.RunError carrying the captured streams; the partial result is
// returned alongside it.
func (r *Runner) Run(ctx context.Context, target, playbook string) (*RunResult, error) {
	runID := r.newID()
	ctx = WithRunID(ctx, runID)
	started := r.now()
	playbookPath := r.PlaybookPath(playbook)
	r.log.Infof("run %s: %s on %s", runID, playbookPath, target)

	res, err := r.creds.WithResolvedCredential(ctx, target, func(ctx context.Context, cred Credential) (*RunResult, error) {
		inv := Invocation{
			InventorySource: r.cfg.InventorySource,
			PlaybookPath:    playbookPath,
			Limit:           cred.Host.Name(),
			KeyFile:         cred.KeyFile,
		}
		out, err := r.engine.Execute(ctx, inv)
		result := &RunResult{
			RunID:    runID,
			Target:   cred.Host.Name(),
			Playbook: playbookPath,
			ExitCode: out.ExitCode,
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			KeyFile:  cred.KeyFile,
		}
		if err != nil {
			return result, err
		}
		if out.ExitCode != 0 {
			return result, &common.RunError{ExitCode: out.ExitCode, Stdout: out.Stdout, Stderr: out.Stderr}
		}
		return result, nil
	})

	r.record(ctx, runID, target, playbookPath, started, res, err)
	if err != nil {
		r.log.Errorf("run %s: %v", runID, err)
		return res, err
	}
	r.log.Infof("run %s: succeeded", runID)
	return res, nil
}

func (r *Runner) record(ctx context.Context, runID, target, playbook string, started time.Time, res *RunResult, runErr error) {
	rec := common.RunRecord{
		RunID:      runID,
		Target:     target,
		Playbook:   playbook,
		Succeeded:  runErr == nil,
		StartedAt:  started,
		FinishedAt: r.now(),
	}
	if res != nil {
		rec.ExitCode = res.ExitCode
		rec.KeyStaged = res.KeyFile != ""
		if res.CleanupErr != nil {
			rec.CleanupError = res.CleanupErr.Error()
		}
	}
	if runErr != nil {
		rec.Error = runErr.Error()
		var runFailed *common.RunError
		if res == nil && errors.As(runErr, &runFailed) {
			rec.ExitCode = runFailed.ExitCode
		}
	}
	// An interrupted run is still worth a journal entry.
	if err := r.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.log.Warnf("run %s: journal: %v", runID, err)
	}
}
