package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"stationpos/backend/internal/domain"
	"stationpos/backend/internal/logx"
)

type reconcilerFunc func(ctx context.Context) (domain.DriftReport, error)

func (f reconcilerFunc) ReconcileStock(ctx context.Context) (domain.DriftReport, error) {
	return f(ctx)
}

func TestSchedulerRunsReconciliation(t *testing.T) {
	calls := make(chan struct{}, 4)
	rec := reconcilerFunc(func(ctx context.Context) (domain.DriftReport, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected reconciliation context to carry a deadline")
		}
		select {
		case calls <- struct{}{}:
		default:
		}
		return domain.DriftReport{Checked: 3}, nil
	})

	s, err := New(rec, time.Hour, logx.Discard())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciliation did not run after start")
	}
}

func TestSchedulerSurvivesReconcileError(t *testing.T) {
	done := make(chan struct{})
	rec := reconcilerFunc(func(context.Context) (domain.DriftReport, error) {
		close(done)
		return domain.DriftReport{}, errors.New("db down")
	})

	s, err := New(rec, time.Hour, logx.Discard())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciliation did not run after start")
	}
}

func TestNewRejectsBadArguments(t *testing.T) {
	if _, err := New(nil, time.Minute, nil); err == nil {
		t.Fatal("expected error for nil reconciler")
	}
	rec := reconcilerFunc(func(context.Context) (domain.DriftReport, error) { return domain.DriftReport{}, nil })
	if _, err := New(rec, 0, nil); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
