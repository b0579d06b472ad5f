package services

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/bugsneak/pkg/repositories"
)

// CapacityGovernor decides whether a new error group may be stored.
type CapacityGovernor interface {
	// AdmitInsert reports whether the table has room for one more row.
	// It is consulted only on the insert path; recurrences are always counted.
	AdmitInsert(ctx context.Context) (bool, error)
}

type capacityGovernor struct {
	repo    repositories.ErrorLogRepository
	maxRows int
}

// NewCapacityGovernor creates a governor for maxRows. Zero or less means unlimited.
// The count-then-insert check is not atomic, so concurrent inserts can overshoot
// maxRows by at most the number of inserts in flight.
func NewCapacityGovernor(repo repositories.ErrorLogRepository, maxRows int) CapacityGovernor {
	return &capacityGovernor{repo: repo, maxRows: maxRows}
}

var _ CapacityGovernor = (*capacityGovernor)(nil)

func (g *capacityGovernor) AdmitInsert(ctx context.Context) (bool, error) {
	if g.maxRows <= 0 {
		return true, nil
	}

	count, err := g.repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count error logs: %w", err)
	}
	return count < int64(g.maxRows), nil
}
