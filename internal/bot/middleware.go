package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] is the outermost layer.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := range m {
		h = m[len(m)-1-i](h)
	}
	return h
}

// MWTimeout reads the limit per call, so a reloaded commands.timeout
// reaches the next command. A zero limit means no deadline.
func MWTimeout(limit func() time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d := limit(); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return next(ctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error for MWRequestLog.
func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if p := recover(); p != nil {
					req.Logger.Error("command handler panicked", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("command %s panicked: %v", req.Command, p)
				}
			}()
			return next(ctx, req)
		}
	}
}

// slowCommand promotes the completion record of a slow command to info.
const slowCommand = 750 * time.Millisecond

func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			began := time.Now()
			err := next(ctx, req)
			took := time.Since(began)
			switch {
			case err != nil:
				req.Logger.Warn("command failed", logx.Int("args", len(req.Args)), logx.Duration("took", took), logx.Err(err))
			case took >= slowCommand:
				req.Logger.Info("command slow", logx.Int("args", len(req.Args)), logx.Duration("took", took))
			default:
				req.Logger.Debug("command done", logx.Int("args", len(req.Args)), logx.Duration("took", took))
			}
			return err
		}
	}
}
