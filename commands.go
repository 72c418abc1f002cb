package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"orchctl/common"
	"orchctl/services"
)

func (a *app) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) runCommand(ctx context.Context, args []string) int {
	fs := a.flagSet("run")
	target := fs.String("target", "", "target hostname or IP address")
	playbook := fs.String("playbook", "", "playbook name, relative to the playbook directory")
	report := fs.Bool("report", false, "mark the target provisioned after a successful run")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if *target == "" || *playbook == "" {
		fmt.Fprintf(a.stderr, "error: --target and --playbook are required\n%s", fs.FlagUsages())
		return 1
	}
	if err := a.cfg.RequireAPI(); err != nil {
		return a.fail(err)
	}

	var journal services.RunJournal
	if j := a.openJournal(ctx); j != nil {
		defer j.Close()
		journal = j
	}
	creds := services.NewCredentialManager(a.cfg, a.fleet, a.log)
	engine := services.NewAnsibleEngine(a.cfg, a.log)
	runner := services.NewRunner(a.cfg, creds, engine, journal, a.log)

	res, err := runner.Run(ctx, *target, *playbook)
	if res != nil {
		fmt.Fprintln(a.stdout, "STDOUT:", res.Stdout)
		fmt.Fprintln(a.stdout, "STDERR:", res.Stderr)
		if res.CleanupErr != nil {
			fmt.Fprintf(a.stderr, "warning: %v\n", res.CleanupErr)
		}
	}
	if err != nil {
		var runErr *common.RunError
		if errors.As(err, &runErr) {
			fmt.Fprintf(a.stderr, "error executing playbook: %v\n", err)
			return common.ExitCode(err)
		}
		return a.fail(err)
	}

	if *report {
		reporter := services.NewStatusReporter(a.fleet, a.fleet, a.log)
		if err := reporter.ReportProvisioned(ctx, *target); err != nil {
			return a.fail(fmt.Errorf("run succeeded but status report failed: %w", err))
		}
		fmt.Fprintf(a.stdout, "Successfully updated status for %s\n", *target)
	}
	return 0
}

func (a *app) statusCommand(ctx context.Context, args []string) int {
	fs := a.flagSet("status")
	target := fs.String("target", "", "target hostname or IP address")
	provisioned := fs.Bool("provisioned", false, "mark the target provisioned")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if *target == "" {
		fmt.Fprintf(a.stderr, "error: --target is required\n%s", fs.FlagUsages())
		return 1
	}

	fields := map[string]any{}
	if *provisioned {
		fields["provisioned"] = true
	}
	if len(fields) == 0 {
		fmt.Fprintln(a.stderr, "No changes specified.")
		return 0
	}

	reporter := services.NewStatusReporter(a.fleet, a.fleet, a.log)
	if err := reporter.Update(ctx, *target, fields); err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "Successfully updated status for %s\n", *target)
	return 0
}

func (a *app) inventoryCommand(ctx context.Context, args []string) int {
	if len(args) > 0 && args[0] == "export" {
		return a.exportCommand(ctx, args[1:])
	}
	fs := a.flagSet("inventory")
	list := fs.Bool("list", false, "print the full inventory")
	host := fs.String("host", "", "print the variables of one host")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if *list && *host != "" {
		fmt.Fprintln(a.stderr, "error: --list and --host are mutually exclusive")
		return 1
	}
	return a.printInventory(ctx, *host)
}

// inventoryScript is the engine-facing contract: exactly "--list" or
// "--host <name>".
func (a *app) inventoryScript(ctx context.Context, args []string) int {
	switch {
	case len(args) == 1 && args[0] == "--list":
		return a.printInventory(ctx, "")
	case len(args) == 2 && args[0] == "--host":
		return a.printInventory(ctx, args[1])
	case len(args) == 1 && strings.HasPrefix(args[0], "--host="):
		return a.printInventory(ctx, strings.TrimPrefix(args[0], "--host="))
	}
	fmt.Fprint(a.stderr, usage)
	return 1
}

// printInventory always succeeds: the provider degrades to an empty
// document rather than failing the engine's run.
func (a *app) printInventory(ctx context.Context, host string) int {
	inv := services.NewInventoryProvider(a.fleet, a.log).BuildInventory(ctx)

	var doc any = inv
	if host != "" {
		doc = inv.HostDocument(host)
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		a.log.Errorf("inventory: write: %v", err)
	}
	return 0
}

// exportCommand writes a static YAML inventory. Unlike --list it fails
// when the API cannot be read, so an outage never produces an empty file.
func (a *app) exportCommand(ctx context.Context, args []string) int {
	fs := a.flagSet("inventory export")
	output := fs.StringP("output", "o", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	hosts, err := a.fleet.ListHosts(ctx)
	if err != nil {
		return a.fail(err)
	}
	inv := services.ProjectInventory(hosts, a.log)

	if *output == "" {
		if err := inv.WriteYAML(a.stdout); err != nil {
			return a.fail(err)
		}
		return 0
	}
	f, err := os.Create(*output)
	if err != nil {
		return a.fail(err)
	}
	if err := inv.WriteYAML(f); err != nil {
		f.Close()
		return a.fail(err)
	}
	if err := f.Close(); err != nil {
		return a.fail(err)
	}
	a.log.Infof("inventory: wrote %d hosts to %s", len(inv.All.Hosts), *output)
	return 0
}

func usageError(err error) int {
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	return 2
}
