package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParallelMapKeepsOrder(t *testing.T) {
	items := []int{5, 1, 4, 2, 3}
	got, err := ParallelMap(context.Background(), items, 2, func(_ context.Context, i int, v int) (string, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return fmt.Sprintf("%d:%d", i, v*v), nil
	})
	if err != nil {
		t.Fatalf("ParallelMap returned error: %v", err)
	}
	want := []string{"0:25", "1:1", "2:16", "3:4", "4:9"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("result %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParallelMapRespectsLimit(t *testing.T) {
	var inFlight, peak int32
	items := make([]int, 12)
	_, err := ParallelMap(context.Background(), items, 3, func(context.Context, int, int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 0, nil
	})
	if err != nil {
		t.Fatalf("ParallelMap returned error: %v", err)
	}
	if peak > 3 {
		t.Fatalf("expected at most 3 concurrent calls, saw %d", peak)
	}
}

func TestParallelMapEmpty(t *testing.T) {
	got, err := ParallelMap(context.Background(), []int(nil), 2, func(context.Context, int, int) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}

func TestParallelMapReportsRealFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := ParallelMap(context.Background(), []int{0, 1, 2, 3}, 1, func(ctx context.Context, i int, _ int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return i, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestParallelMapParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParallelMap(ctx, []int{1, 2}, 1, func(ctx context.Context, _ int, _ int) (int, error) {
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParallelForEach(t *testing.T) {
	var sum int64
	err := ParallelForEach(context.Background(), []int64{1, 2, 3, 4}, 0, func(_ context.Context, _ int, v int64) error {
		atomic.AddInt64(&sum, v)
		return nil
	})
	if err != nil {
		t.Fatalf("ParallelForEach returned error: %v", err)
	}
	if sum != 10 {
		t.Fatalf("expected sum 10, got %d", sum)
	}
}

func TestWorkerPoolDo(t *testing.T) {
	wp := NewWorkerPool(0)
	if wp.Limit() != DefaultLimit {
		t.Fatalf("expected default limit, got %d", wp.Limit())
	}
	called := false
	if err := wp.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	}); err != nil || !called {
		t.Fatalf("Do: called=%v err=%v", called, err)
	}

	full := NewWorkerPool(1)
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- full.Do(context.Background(), func(context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := full.Do(ctx, func(context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Do failed: %v", err)
	}
}
