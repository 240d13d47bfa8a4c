package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"vibesync.dev/syncorch/internal/errkind"
)

func TestExecuteActivityRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{InitialInterval: time.Millisecond, BackoffFactor: 1, MaxInterval: time.Millisecond, MaxAttempts: 3}

	result, err := ExecuteActivity(context.Background(), "flaky", time.Second, policy, func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestExecuteActivityNonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	policy := DefaultRetryPolicy()

	_, err := ExecuteActivity(context.Background(), "validate", time.Second, policy, func(ctx context.Context) (any, error) {
		attempts++
		return nil, validationErr()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (non-retryable should not retry)", attempts)
	}
}

func validationErr() error {
	return errkind.New(errkind.Validation, "validate", errors.New("invalid"))
}

func TestContinueAsNewLoop(t *testing.T) {
	r := NewRunner(nil)
	var runs []int

	fn := func(ctx context.Context, input any) (any, error) {
		n := input.(int)
		runs = append(runs, n)
		if n < 3 {
			return nil, ContinueAsNew(n + 1)
		}
		return n, nil
	}

	h := r.Start(context.Background(), StartOptions{}, fn, 1)
	result, err := h.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 3 {
		t.Errorf("result = %v, want 3", result)
	}
	if len(runs) != 3 {
		t.Errorf("runs = %v, want 3 continue-as-new iterations", runs)
	}
}

func TestRunChildSynchronous(t *testing.T) {
	r := NewRunner(nil)
	result, err := r.RunChild(context.Background(), StartOptions{WorkflowID: "child-1"}, func(ctx context.Context, input any) (any, error) {
		return input.(string) + "-done", nil
	}, "item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "item-done" {
		t.Errorf("result = %v, want item-done", result)
	}
}

func TestSleepCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Second); err == nil {
		t.Error("expected cancelled sleep to return an error")
	}
}

func TestRunnerListReportsRunningCompletedAndFailed(t *testing.T) {
	r := NewRunner(nil)
	release := make(chan struct{})

	r.Start(context.Background(), StartOptions{WorkflowID: "ok"}, func(ctx context.Context, input any) (any, error) {
		return "done", nil
	}, nil)
	r.Start(context.Background(), StartOptions{WorkflowID: "bad"}, func(ctx context.Context, input any) (any, error) {
		return nil, errors.New("boom")
	}, nil)
	h := r.Start(context.Background(), StartOptions{WorkflowID: "slow"}, func(ctx context.Context, input any) (any, error) {
		<-release
		return "done", nil
	}, nil)

	deadline := time.Now().Add(time.Second)
	for {
		okH, _ := r.Lookup("ok")
		badH, _ := r.Lookup("bad")
		if okH.Status() != StatusRunning && badH.Status() != StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("workflows never settled")
		}
		time.Sleep(time.Millisecond)
	}

	summaries := map[string]Summary{}
	for _, s := range r.List() {
		summaries[s.WorkflowID] = s
	}
	if summaries["ok"].Status != StatusCompleted {
		t.Errorf("ok status = %v, want completed", summaries["ok"].Status)
	}
	if summaries["bad"].Status != StatusFailed || summaries["bad"].Err == "" {
		t.Errorf("bad summary = %+v, want failed with an error message", summaries["bad"])
	}
	if summaries["slow"].Status != StatusRunning {
		t.Errorf("slow status = %v, want running", summaries["slow"].Status)
	}

	close(release)
	h.Wait()
}

func TestHandleFromContextVisibleInsideWorkflowBody(t *testing.T) {
	r := NewRunner(nil)
	var sawSelf bool

	fn := func(ctx context.Context, input any) (any, error) {
		h, ok := HandleFromContext(ctx)
		sawSelf = ok && h.ID == "self-aware"
		return nil, nil
	}

	h := r.Start(context.Background(), StartOptions{WorkflowID: "self-aware"}, fn, nil)
	h.Wait()
	if !sawSelf {
		t.Error("expected workflow body to see its own Handle via HandleFromContext")
	}
}
