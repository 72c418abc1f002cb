// utils/exec.go - subprocess execution with captured streams
package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// CommandResult is the outcome of one finished (or unstartable) process.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	// Err is set when the process could not be started or was killed;
	// a plain non-zero exit leaves it nil and sets ExitCode.
	Err error
}

// Command describes one process invocation.
type Command struct {
	Bin  string
	Args []string
	// Env is the complete environment; nil inherits the parent's.
	Env []string
	Dir string
}

// RunCommand runs cmd to completion and captures both streams. There is
// no default timeout: the caller's context is the only way to stop it.
func RunCommand(ctx context.Context, c Command) CommandResult {
	cmd := exec.CommandContext(ctx, c.Bin, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = fmt.Errorf("command interrupted: %w", ctx.Err())
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

// MergeEnv returns base with every key in overrides replaced or appended.
// A nil base with no overrides stays nil, so the child inherits the
// parent's environment.
func MergeEnv(base []string, overrides map[string]string) []string {
	if base == nil && len(overrides) == 0 {
		return nil
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range sortedKeys(overrides) {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
