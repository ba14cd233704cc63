package watch

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestWaitResolvesSynchronously(t *testing.T) {
	q := &stubQuery{vals: []any{"a", "b", "c", "d", "e"}}
	e := newTestEngine(q, false)

	vals, err := e.Wait(context.Background(), WaitOpts{
		MinResults: 3,
		Transform: func(in []any) []any {
			out := make([]any, len(in))
			for i, v := range in {
				out[i] = strings.ToUpper(v.(string))
			}
			return out
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 5 {
		t.Fatalf("resolved with %d values, want all 5 matches", len(vals))
	}
	if vals[0] != "A" || vals[4] != "E" {
		t.Fatalf("transform not applied: %v", vals)
	}
	if q.evalCount() != 1 {
		t.Fatalf("synchronous resolve ran %d evaluations, want 1", q.evalCount())
	}
}

func TestWaitDefaultsToOneResult(t *testing.T) {
	q := &stubQuery{vals: []any{"only"}}
	e := newTestEngine(q, false)

	vals, err := e.Wait(context.Background(), WaitOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0] != "only" {
		t.Fatalf("vals = %v", vals)
	}
}

func TestWaitRejectsNegativeThreshold(t *testing.T) {
	e := newTestEngine(&stubQuery{}, false)
	if _, err := e.Wait(context.Background(), WaitOpts{MinResults: -1}); err != ErrBadThreshold {
		t.Fatalf("err = %v, want ErrBadThreshold", err)
	}
}

func TestWaitResolvesOnLaterPass(t *testing.T) {
	q := &stubQuery{}
	e := newTestEngine(q, false)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.set("x", "y")
		e.Check()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	vals, err := e.Wait(ctx, WaitOpts{MinResults: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 {
		t.Fatalf("vals = %v", vals)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	q := &stubQuery{}
	e := newTestEngine(q, false)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := e.Wait(ctx, WaitOpts{}); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWaitCustomStart(t *testing.T) {
	q := &stubQuery{}
	e := newTestEngine(q, false)

	started := false
	vals, err := e.Wait(context.Background(), WaitOpts{
		Start: func() {
			started = true
			q.set("late")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !started {
		t.Fatal("custom Start not invoked")
	}
	if len(vals) != 1 || vals[0] != "late" {
		t.Fatalf("vals = %v", vals)
	}
}

func TestWaitSingleModeThresholdDiagnosed(t *testing.T) {
	q := &stubQuery{vals: []any{"v"}}
	e := newTestEngine(q, true)

	vals, err := e.Wait(context.Background(), WaitOpts{MinResults: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0] != "v" {
		t.Fatalf("vals = %v", vals)
	}
	if got := e.diags.count(DiagWaitThreshold); got != 1 {
		t.Fatalf("threshold diagnostic count = %d", got)
	}
}

func TestWaitSingleModeResolvesOnAdd(t *testing.T) {
	q := &stubQuery{}
	e := newTestEngine(q, true)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.set("v")
		e.Check()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	vals, err := e.Wait(ctx, WaitOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0] != "v" {
		t.Fatalf("vals = %v", vals)
	}
}
