package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/m-lab/filexfer/plan"
	"github.com/m-lab/filexfer/results"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransferer produces one row per repetition, fails on files named
// in |errs| and cancels the run when it reaches |cancelAt|.
type fakeTransferer struct {
	errs     map[string]error
	cancelAt string
	cancel   context.CancelFunc
}

func (f *fakeTransferer) Transfer(ctx context.Context, e plan.Entry) ([]results.Row, error) {
	if err := f.errs[e.File]; err != nil {
		return nil, err
	}
	var rows []results.Row
	for i := 1; i <= e.Repeats; i++ {
		if e.File == f.cancelAt && i == 2 {
			f.cancel()
			return rows, ctx.Err()
		}
		rows = append(rows, results.NewRow("FAKE", "v", e.File, 10, i, time.Duration(i)*time.Millisecond))
	}
	return rows, nil
}

type memSink struct {
	batches [][]results.Row
	err     error
}

func (m *memSink) WriteRows(rows []results.Row) error {
	if m.err != nil {
		return m.err
	}
	if len(rows) > 0 {
		m.batches = append(m.batches, rows)
	}
	return nil
}

func (m *memSink) count(file string) int {
	n := 0
	for _, b := range m.batches {
		for _, r := range b {
			if r.FileName == file {
				n++
			}
		}
	}
	return n
}

func TestRunner_Run(t *testing.T) {
	tests := []struct {
		name    string
		plan    plan.Plan
		errs    map[string]error
		want    map[string]int
		batches int
	}{
		{
			name:    "all-entries",
			plan:    plan.Plan{{File: "a", Repeats: 3}, {File: "b", Repeats: 0}, {File: "c", Repeats: 2}},
			want:    map[string]int{"a": 3, "b": 0, "c": 2},
			batches: 2,
		},
		{
			name:    "missing-file-skipped",
			plan:    plan.Plan{{File: "gone", Repeats: 5}, {File: "a", Repeats: 1}},
			errs:    map[string]error{"gone": fmt.Errorf("read gone: %w", fs.ErrNotExist)},
			want:    map[string]int{"gone": 0, "a": 1},
			batches: 1,
		},
		{
			name:    "failed-entry-continues",
			plan:    plan.Plan{{File: "bad", Repeats: 5}, {File: "a", Repeats: 2}},
			errs:    map[string]error{"bad": errors.New("broken")},
			want:    map[string]int{"bad": 0, "a": 2},
			batches: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memSink{}
			r := &Runner{Transferer: &fakeTransferer{errs: tt.errs}, Sink: sink, Protocol: "FAKE"}
			if err := r.Run(context.Background(), tt.plan); err != nil {
				t.Fatalf("Run() = %v", err)
			}
			for file, n := range tt.want {
				if got := sink.count(file); got != n {
					t.Errorf("%s: %d rows, want %d", file, got, n)
				}
			}
			// Rows are flushed once per entry.
			if len(sink.batches) != tt.batches {
				t.Errorf("%d batches, want %d", len(sink.batches), tt.batches)
			}
		})
	}
}

func TestRunner_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &memSink{}
	r := &Runner{
		Transferer: &fakeTransferer{cancelAt: "b", cancel: cancel},
		Sink:       sink,
		Protocol:   "FAKE",
	}
	err := r.Run(ctx, plan.Plan{{File: "a", Repeats: 2}, {File: "b", Repeats: 5}, {File: "c", Repeats: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	// The completed entry and the partial one are kept; nothing after.
	got := []int{sink.count("a"), sink.count("b"), sink.count("c")}
	if want := []int{2, 1, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("rows per file = %v, want %v", got, want)
	}
}

func TestRunner_SinkError(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	r := &Runner{Transferer: &fakeTransferer{}, Sink: sink}
	if err := r.Run(context.Background(), plan.Plan{{File: "a", Repeats: 1}}); err == nil {
		t.Error("Run() with a failing sink succeeded")
	}
}

type memSummaries struct {
	mu   sync.Mutex
	got  []*EntrySummary
	fail bool
}

func (m *memSummaries) PutSummary(ctx context.Context, s *EntrySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("unavailable")
	}
	m.got = append(m.got, s)
	return nil
}

func TestRunner_Summaries(t *testing.T) {
	store := &memSummaries{}
	r := &Runner{Transferer: &fakeTransferer{}, Sink: &memSink{}, Protocol: "FAKE", RunID: "run-1", Summaries: store}
	if err := r.Run(context.Background(), plan.Plan{{File: "a", Repeats: 3}}); err != nil {
		t.Fatal(err)
	}
	if len(store.got) != 1 {
		t.Fatalf("got %d summaries, want 1", len(store.got))
	}
	s := store.got[0]
	if s.RunID != "run-1" || s.File != "a" || s.Rows != 3 || s.Protocol != "FAKE" {
		t.Errorf("summary = %+v", s)
	}
	// A failing store does not fail the run.
	store.fail = true
	if err := r.Run(context.Background(), plan.Plan{{File: "a", Repeats: 1}}); err != nil {
		t.Errorf("Run() with failing summaries = %v", err)
	}
}

func TestSummarize(t *testing.T) {
	rows := []results.Row{
		{Elapsed: 100 * time.Microsecond},
		{Elapsed: 200 * time.Microsecond, TimedOut: true},
		{Elapsed: 300 * time.Microsecond},
	}
	s := Summarize(rows)
	if s.Rows != 3 || s.Timeouts != 1 {
		t.Errorf("Summarize() counts = %d rows, %d timeouts", s.Rows, s.Timeouts)
	}
	if s.P50 != 200*time.Microsecond || s.P99 != 300*time.Microsecond {
		t.Errorf("Summarize() p50=%v p99=%v", s.P50, s.P99)
	}
	if empty := Summarize(nil); empty.P50 != 0 || empty.Rows != 0 {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}

func TestRepeat(t *testing.T) {
	ctx := context.Background()
	calls := 0
	rows, err := Repeat(ctx, plan.Entry{File: "100B", Repeats: 4}, "HTTP", "GET", func(ctx context.Context) (int, error) {
		calls++
		if calls == 3 {
			return 0, errors.New("reset by peer")
		}
		return 100, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[2].Iteration != 4 || rows[0].Protocol != "HTTP" || rows[0].Variant != "GET" || rows[0].FileSize != 100 {
		t.Errorf("rows = %+v", rows)
	}

	_, err = Repeat(ctx, plan.Entry{File: "gone", Repeats: 4}, "HTTP", "GET", func(ctx context.Context) (int, error) {
		return 0, fs.ErrNotExist
	})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Repeat() error = %v, want fs.ErrNotExist", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	n := 0
	rows, err = Repeat(cctx, plan.Entry{File: "x", Repeats: 10}, "HTTP", "GET", func(ctx context.Context) (int, error) {
		n++
		if n == 3 {
			cancel()
		}
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) || len(rows) != 2 {
		t.Errorf("Repeat() cancelled = %d rows, %v", len(rows), err)
	}
}

type fakeFlags struct {
	mu    sync.Mutex
	calls int
	setAt int
}

func (f *fakeFlags) GetTerminationFlag(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return 0, errors.New("connection refused")
	}
	if f.calls >= f.setAt {
		return 1, nil
	}
	return 0, nil
}

func TestWatchTermination(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	flags := &fakeFlags{setAt: 3}
	done := make(chan struct{})
	go func() {
		WatchTermination(ctx, flags, "run-1", time.Millisecond, cancel)
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("termination flag did not cancel the context")
	}
	<-done

	// Without a flag, the watcher exits with its context.
	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel2()
	}()
	WatchTermination(ctx2, &fakeFlags{setAt: 1 << 30}, "run-2", time.Millisecond, func() {
		t.Error("cancel called without a termination flag")
	})
}
