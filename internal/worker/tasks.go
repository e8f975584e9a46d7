// Package worker runs the matchmaking sweep as a scheduled asynq task so that
// only one node sweeps per interval.
package worker

import (
	"context"
	"strangerchat/backend/internal/chathub"

	"github.com/hibiken/asynq"
)

const (
	TypeSweep  = "matchmaking:sweep"
	QueueSweep = "matchmaking"
)

// Sweeper is the part of *chathub.Sweeper the task handler calls.
type Sweeper interface {
	Sweep(ctx context.Context) (chathub.SweepReport, error)
}

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweep, nil)
}
