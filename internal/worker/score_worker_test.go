package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cariya/internal/amqp"
	"cariya/internal/core"
	"cariya/internal/services"
)

type fakeProcessor struct {
	mu     sync.Mutex
	calls  []*int
	runIDs []string
	err    error
}

func (f *fakeProcessor) ProcessMonthRun(_ context.Context, runID string, target *int) (services.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, target)
	f.runIDs = append(f.runIDs, runID)
	if f.err != nil {
		return services.Summary{}, f.err
	}
	key := "2025-02"
	if target != nil {
		key = fmt.Sprintf("2025-%02d", *target)
	}
	return services.Summary{RunID: runID, MonthKey: key, Processed: 1}, nil
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate(context.Context) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

// fakeConsumer delivers its messages then blocks until ctx is done.
type fakeConsumer struct {
	msgs    []*amqp.ScoreMonthMessage
	results []error
}

func (f *fakeConsumer) ConsumeScoreMonth(ctx context.Context, handler func(context.Context, *amqp.ScoreMonthMessage) error) error {
	for _, m := range f.msgs {
		f.results = append(f.results, handler(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleScoreMonth(t *testing.T) {
	proc := &fakeProcessor{}
	inv := &countingInvalidator{}
	w := NewScoreWorker(proc, nil, inv, 0)

	month := 3
	if err := w.HandleScoreMonth(context.Background(), amqp.NewScoreMonthMessage("run-1", &month)); err != nil {
		t.Fatalf("HandleScoreMonth: %v", err)
	}
	if proc.runIDs[0] != "run-1" || *proc.calls[0] != 3 {
		t.Fatalf("unexpected call %v %v", proc.runIDs, proc.calls)
	}
	if key, at := w.LastRun(); key != "2025-03" || at.IsZero() {
		t.Fatalf("LastRun = %q %v", key, at)
	}
	if inv.n != 1 {
		t.Fatalf("reports invalidated %d times", inv.n)
	}

	if err := w.HandleScoreMonth(context.Background(), &amqp.ScoreMonthMessage{}); err != nil {
		t.Fatalf("HandleScoreMonth without run id: %v", err)
	}
	if proc.runIDs[1] == "" {
		t.Fatal("a run id should be generated")
	}
}

func TestHandleScoreMonthErrors(t *testing.T) {
	proc := &fakeProcessor{err: fmt.Errorf("%w: month must be between 1 and 4, got 9", core.ErrInvalidInput)}
	w := NewScoreWorker(proc, nil, nil, 0)
	if err := w.HandleScoreMonth(context.Background(), &amqp.ScoreMonthMessage{RunID: "x"}); err != nil {
		t.Fatalf("invalid requests should be dropped, got %v", err)
	}

	proc.err = fmt.Errorf("%w: disk full", core.ErrUnrecoverable)
	err := w.HandleScoreMonth(context.Background(), &amqp.ScoreMonthMessage{RunID: "y"})
	if !errors.Is(err, core.ErrUnrecoverable) {
		t.Fatalf("storage failures should be requeued, got %v", err)
	}
	if key, _ := w.LastRun(); key != "" {
		t.Fatalf("failed runs must not update LastRun, got %q", key)
	}
}

func TestStartupCheck(t *testing.T) {
	proc := &fakeProcessor{}
	w := NewScoreWorker(proc, nil, nil, 0)
	if err := w.StartupCheck(context.Background()); err != nil {
		t.Fatalf("StartupCheck: %v", err)
	}
	if proc.calls[0] != nil {
		t.Fatal("startup run should target the previous month")
	}

	proc.err = errors.New("boom")
	if err := w.StartupCheck(context.Background()); err == nil {
		t.Fatal("expected startup error")
	}
}

func TestRunConsumesAndTicks(t *testing.T) {
	proc := &fakeProcessor{}
	month := 2
	consumer := &fakeConsumer{msgs: []*amqp.ScoreMonthMessage{amqp.NewScoreMonthMessage("q-1", &month)}}
	w := NewScoreWorker(proc, consumer, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v after cancellation", err)
	}
	if proc.count() < 3 {
		t.Fatalf("expected the queued run and periodic runs, got %d calls", proc.count())
	}
	if len(consumer.results) != 1 || consumer.results[0] != nil {
		t.Fatalf("consumer results %v", consumer.results)
	}
}

type failingConsumer struct{}

func (failingConsumer) ConsumeScoreMonth(context.Context, func(context.Context, *amqp.ScoreMonthMessage) error) error {
	return errors.New("message channel closed")
}

func TestRunStopsOnConsumerFailure(t *testing.T) {
	w := NewScoreWorker(&fakeProcessor{}, failingConsumer{}, nil, time.Hour)
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the consumer error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after the consumer failed")
	}
}
