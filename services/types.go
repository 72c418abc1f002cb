// services/types.go - Shared interfaces between the components
package services

import (
	"context"

	"orchctl/common"
)

// HostLister returns every host record the fleet API knows.
type HostLister interface {
	ListHosts(ctx context.Context) ([]common.Host, error)
}

// HostResolver maps an operator-supplied target to one host record,
// failing with common.ErrTargetNotFound.
type HostResolver interface {
	FindHost(ctx context.Context, target string) (common.Host, error)
}

// StatusPatcher writes changed fields of one host record.
type StatusPatcher interface {
	PatchHostStatus(ctx context.Context, id string, fields map[string]any) error
}

// RunJournal records finished runs. Implementations must not block a run
// on their own failures; the runner only logs what Record returns.
type RunJournal interface {
	Record(ctx context.Context, rec common.RunRecord) error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, common.RunRecord) error { return nil }
