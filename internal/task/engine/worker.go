package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

type worker struct {
	svc   *Service
	queue <-chan job
	quit  <-chan struct{}
}

// loop returns nil only when the pool is shutting down; any other exit is a
// crash for the supervisor to restart.
func (w *worker) loop(ctx context.Context) error {
	for {
		select {
		case <-w.quit:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}
		select {
		case <-w.quit:
			return nil
		case <-ctx.Done():
			return nil
		case j := <-w.queue:
			w.svc.inFlight.Add(1)
			w.deliver(ctx, j)
			w.svc.inFlight.Add(-1)
		}
	}
}

func (w *worker) deliver(ctx context.Context, j job) {
	s := w.svc
	ev := TaskEvent{ID: j.id, Name: j.task.Name, Started: time.Now()}
	ev.QueueDelay = max(ev.Started.Sub(j.queued), 0)

	var err error
	for ev.Attempts = 1; ; ev.Attempts++ {
		err = attempt(ctx, j.task)
		if err == nil || IsNoRetry(err) || ev.Attempts > s.cfg.RetryMax {
			break
		}
		wait := retryDelay(s.cfg, ev.Attempts, err)
		s.log.Debug("delivery retry", logx.Job(j.task.Name), logx.Int("attempt", ev.Attempts+1), logx.Duration("wait", wait), logx.Err(err))
		if err = w.sleep(ctx, wait); err != nil {
			break
		}
	}
	ev.Duration = time.Since(ev.Started)

	if err == nil {
		s.log.Debug("delivery done", logx.Job(j.task.Name), logx.Int("attempts", ev.Attempts), logx.Duration("took", ev.Duration))
		s.bus.Publish(eventbus.Event{Type: eventbus.TaskFinished, Data: ev})
		return
	}
	var f *finalError
	if errors.As(err, &f) {
		err = f.cause
	}
	ev.Error = err.Error()
	s.log.Warn("delivery failed", logx.Job(j.task.Name), logx.Int("attempts", ev.Attempts), logx.Err(err))
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskFailed, Data: ev})
}

func (w *worker) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-w.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attempt runs one try under the task timeout. A panicking sender is
// reported as a failed attempt.
func attempt(ctx context.Context, t Task) (err error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", t.Name, r)
		}
	}()
	return t.Run(ctx)
}

// retryDelay is RetryBase doubled per failed attempt with 20% jitter, capped
// at RetryMaxDelay. A flood wait from Telegram takes precedence.
func retryDelay(cfg Config, failed int, err error) time.Duration {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return min(ra.RetryAfter(), cfg.RetryMaxDelay)
	}
	d := cfg.RetryBase
	for i := 1; i < failed && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, cfg.RetryMaxDelay)) * (0.8 + 0.4*rand.Float64()))
	return min(d, cfg.RetryMaxDelay)
}
