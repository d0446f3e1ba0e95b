package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/usecase/milestone"
)

type countingSweeps struct {
	approved  atomic.Int32
	escalated atomic.Int32
	reviewed  atomic.Int32
}

func (c *countingSweeps) AutoApproveDue(context.Context) (milestone.SweepResult, error) {
	c.approved.Add(1)
	return milestone.SweepResult{}, nil
}

func (c *countingSweeps) EscalateDue(context.Context) (int, error) {
	c.escalated.Add(1)
	return 1, errors.New("частичный сбой")
}

type reviewFunc func(ctx context.Context) (int, error)

func (f reviewFunc) Execute(ctx context.Context) (int, error) { return f(ctx) }

func TestManagerRunsSweeps(t *testing.T) {
	m, err := NewManager(time.Second)
	require.NoError(t, err)

	sweeps := &countingSweeps{}
	review := reviewFunc(func(context.Context) (int, error) {
		sweeps.reviewed.Add(1)
		return 0, nil
	})

	iv := Intervals{AutoApprove: 20 * time.Millisecond, Escalation: 20 * time.Millisecond}
	require.NoError(t, RegisterSweeps(m, iv, sweeps, sweeps, review))
	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return sweeps.approved.Load() >= 2 && sweeps.escalated.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	// нулевой интервал отключает задачу
	assert.Zero(t, sweeps.reviewed.Load())
}

func TestManagerRecoversPanic(t *testing.T) {
	m, err := NewManager(time.Second)
	require.NoError(t, err)

	var calls atomic.Int32
	require.NoError(t, m.Register(Job{
		Name:     "panicky",
		Interval: 20 * time.Millisecond,
		Run: func(context.Context) error {
			calls.Add(1)
			panic("boom")
		},
	}))
	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}
