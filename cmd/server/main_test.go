package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tuition-engine/api"
	"github.com/warp/tuition-engine/notify"
)

type step struct {
	name  string
	steps *[]string
	err   error
}

func (s step) Stop() { *s.steps = append(*s.steps, s.name) }

func (s step) Shutdown(context.Context) error {
	*s.steps = append(*s.steps, s.name)
	return s.err
}

func TestDrain_StopsSchedulerBeforeServer(t *testing.T) {
	var steps []string
	err := drain(context.Background(), step{name: "scheduler", steps: &steps}, step{name: "server", steps: &steps})
	require.NoError(t, err)
	assert.Equal(t, []string{"scheduler", "server"}, steps)
}

func TestDrain_ReportsShutdownFailure(t *testing.T) {
	var steps []string
	err := drain(context.Background(), step{name: "scheduler", steps: &steps},
		step{name: "server", steps: &steps, err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"scheduler", "server"}, steps)
}

func TestDrain_UnstartedScheduler(t *testing.T) {
	// A scheduler built but never started (reminders disabled) drains cleanly.
	sched, err := api.NewReminderScheduler(nil, notify.NewMemoryRunLog(), time.UTC, "FREQ=DAILY", nil)
	require.NoError(t, err)

	var steps []string
	require.NoError(t, drain(context.Background(), sched, step{name: "server", steps: &steps}))
	assert.Equal(t, []string{"server"}, steps)
}
