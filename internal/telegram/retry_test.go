package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var errFatal = errors.New("permission denied")

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "connection reset" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

func newTestDriver() (*Driver, *[]time.Duration) {
	logger := zerolog.Nop()
	d := NewDriver(1, &logger)
	d.limiter = rate.NewLimiter(rate.Inf, 1)

	var sleeps []time.Duration

	d.sleep = func(_ context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)

		return nil
	}

	return d, &sleeps
}

func TestDoFloodWaitRetries(t *testing.T) {
	d, sleeps := newTestDriver()

	calls := 0

	err := d.Do(context.Background(), "op", func(_ context.Context) error {
		calls++
		if calls == 1 {
			return tgerr.New(420, "FLOOD_WAIT_2")
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	if len(*sleeps) != 1 || (*sleeps)[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want [2s]", *sleeps)
	}
}

func TestDoFloodWaitBudgetExhausted(t *testing.T) {
	d, _ := newTestDriver()

	calls := 0

	err := d.Do(context.Background(), "op", func(_ context.Context) error {
		calls++

		return tgerr.New(420, "FLOOD_WAIT_1")
	})
	if err == nil {
		t.Fatal("Do() error = nil, want budget exhaustion")
	}

	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}
}

func TestDoTransientBackoff(t *testing.T) {
	d, sleeps := newTestDriver()

	calls := 0

	err := d.Do(context.Background(), "op", func(_ context.Context) error {
		calls++

		return fakeNetError{}
	})
	if err == nil {
		t.Fatal("Do() error = nil, want surfaced failure")
	}

	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}

	for i, dur := range want {
		if (*sleeps)[i] != dur {
			t.Errorf("sleep[%d] = %v, want %v", i, (*sleeps)[i], dur)
		}
	}
}

func TestDoFatalSurfacesImmediately(t *testing.T) {
	d, sleeps := newTestDriver()

	calls := 0

	err := d.Do(context.Background(), "op", func(_ context.Context) error {
		calls++

		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("Do() error = %v, want %v", err, errFatal)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	if len(*sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", *sleeps)
	}
}

func TestDoSuccessFirstTry(t *testing.T) {
	d, _ := newTestDriver()

	calls := 0

	if err := d.Do(context.Background(), "op", func(_ context.Context) error {
		calls++

		return nil
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoCancelledContext(t *testing.T) {
	d, _ := newTestDriver()

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0

	err := d.Do(ctx, "op", func(_ context.Context) error {
		calls++

		cancel()

		return fakeNetError{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestOnFloodWaitHook(t *testing.T) {
	d, _ := newTestDriver()

	var observed []int

	d.OnFloodWait(func(seconds int) {
		observed = append(observed, seconds)
	})

	calls := 0

	err := d.Do(context.Background(), "op", func(_ context.Context) error {
		calls++
		if calls == 1 {
			return tgerr.New(420, "FLOOD_WAIT_7")
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if len(observed) != 1 || observed[0] != 7 {
		t.Errorf("observed = %v, want [7]", observed)
	}
}
