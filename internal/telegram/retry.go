package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	maxRetries = 3

	transientBaseSleep = 5 * time.Second

	floodWaitCode = 420
)

// Driver runs RPC operations with rate pacing and a bounded retry loop.
// Flood-wait errors sleep for the server-provided hint; other transient
// failures back off 5s, 10s, 20s. An operation is invoked at most
// maxRetries+1 times.
type Driver struct {
	limiter *rate.Limiter
	logger  *zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	onFloodWait func(seconds int)
}

// NewDriver creates a driver pacing at rps calls per second.
func NewDriver(rps int, logger *zerolog.Logger) *Driver {
	if rps <= 0 {
		rps = 1
	}

	return &Driver{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// OnFloodWait registers a hook invoked with the hint seconds each time a
// flood wait is observed.
func (d *Driver) OnFloodWait(fn func(seconds int)) {
	d.onFloodWait = fn
}

// Do runs fn under the pacer, retrying flood waits and transient failures.
func (d *Driver) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: wait for pacer: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}

		if attempt >= maxRetries {
			return fmt.Errorf("%s: retries exhausted: %w", op, err)
		}

		if seconds, ok := floodWait(err); ok {
			d.logger.Warn().Int("seconds", seconds).Str("op", op).Msg("flood wait")

			if d.onFloodWait != nil {
				d.onFloodWait(seconds)
			}

			if err := d.sleep(ctx, time.Duration(seconds)*time.Second); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			continue
		}

		if transient(err) {
			backoff := transientBaseSleep << attempt

			d.logger.Warn().Err(err).Dur("backoff", backoff).Str("op", op).Msg("transient failure")

			if err := d.sleep(ctx, backoff); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			continue
		}

		return fmt.Errorf("%s: %w", op, err)
	}
}

// Sleep pauses for d or until the context is cancelled. Scanners and
// sweepers use it for inter-call pacing outside the retry loop.
func (d *Driver) Sleep(ctx context.Context, dur time.Duration) error {
	return d.sleep(ctx, dur)
}

func floodWait(err error) (int, bool) {
	rpcErr, ok := tgerr.As(err)
	if !ok {
		return 0, false
	}

	if rpcErr.Type != "FLOOD_WAIT" {
		return 0, false
	}

	return rpcErr.Argument, true
}

func transient(err error) bool {
	if rpcErr, ok := tgerr.As(err); ok {
		return rpcErr.Code == floodWaitCode
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
