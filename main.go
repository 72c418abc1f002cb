// orchctl drives playbook runs against hosts registered in the fleet API
// and serves the same hosts as a dynamic inventory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"orchctl/common"
	"orchctl/database"
	"orchctl/services"
)

const usage = `usage:
  orchctl run --target <host> --playbook <name> [--report]
  orchctl status --target <host> [--provisioned]
  orchctl inventory [--list | --host <name>]
  orchctl inventory export [-o <file>]
  orchctl --list | --host <name>
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv, os.Environ())
	stop()
	os.Exit(code)
}

// app carries what every subcommand needs.
type app struct {
	cfg    *common.Config
	log    *common.Logger
	stdout io.Writer
	stderr io.Writer
	fleet  *services.FleetClient
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string, environ []string) int {
	cfg := common.LoadConfig(getenv, environ)
	if cfg.InventorySource == "" {
		if exe, err := os.Executable(); err == nil {
			cfg.InventorySource = exe
		}
	}
	log := common.NewLogger(cfg, stderr)
	a := &app{
		cfg:    cfg,
		log:    log,
		stdout: stdout,
		stderr: stderr,
		fleet:  services.NewFleetClient(cfg, log),
	}

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}
	switch cmd := args[0]; {
	case cmd == "run":
		return a.runCommand(ctx, args[1:])
	case cmd == "status":
		return a.statusCommand(ctx, args[1:])
	case cmd == "inventory":
		return a.inventoryCommand(ctx, args[1:])
	case cmd == "-h" || cmd == "--help" || cmd == "help":
		fmt.Fprint(stdout, usage)
		return 0
	case strings.HasPrefix(cmd, "-"):
		// Invoked by the engine as the inventory executable.
		return a.inventoryScript(ctx, args)
	default:
		fmt.Fprintf(stderr, "error: unknown command %q\n%s", cmd, usage)
		return 1
	}
}

// fail prints err and maps it to an exit status.
func (a *app) fail(err error) int {
	fmt.Fprintf(a.stderr, "error: %v\n", err)
	return common.ExitCode(err)
}

// openJournal returns nil when no DSN is configured or the database is
// unreachable; the run goes ahead without a journal either way.
func (a *app) openJournal(ctx context.Context) *database.Journal {
	if a.cfg.JournalDSN == "" {
		return nil
	}
	j, err := database.OpenJournal(ctx, a.cfg.JournalDSN, a.log)
	if err != nil {
		a.log.Warnf("journal disabled: %v", err)
		return nil
	}
	return j
}
