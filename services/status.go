package services

import (
	"context"
	"fmt"

	"orchctl/common"
)

// StatusReporter writes run outcomes back to the fleet API. Only the
// provisioned=true transition exists; failures are not written back.
type StatusReporter struct {
	hosts   HostResolver
	patcher StatusPatcher
	log     *common.Logger
}

func NewStatusReporter(hosts HostResolver, patcher StatusPatcher, log *common.Logger) *StatusReporter {
	return &StatusReporter{hosts: hosts, patcher: patcher, log: log}
}

// ReportProvisioned marks target as provisioned.
func (s *StatusReporter) ReportProvisioned(ctx context.Context, target string) error {
	return s.Update(ctx, target, map[string]any{"provisioned": true})
}

// Update resolves target to its id and patches fields onto it. Writes are
// not coordinated across processes; the last writer wins.
func (s *StatusReporter) Update(ctx context.Context, target string, fields map[string]any) error {
	host, err := s.hosts.FindHost(ctx, target)
	if err != nil {
		return err
	}
	if host.ID == "" {
		return fmt.Errorf("%w: host record for %q has no id", common.ErrMalformedResponse, target)
	}
	if err := s.patcher.PatchHostStatus(ctx, string(host.ID), fields); err != nil {
		return fmt.Errorf("update status of %s: %w", target, err)
	}
	s.log.Infof("status: updated %s (id=%s)", host.Name(), host.ID)
	return nil
}
