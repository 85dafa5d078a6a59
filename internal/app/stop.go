package app

import (
	"context"
	"fmt"
	"time"

	logx "doorbot/pkg/logx"
)

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopFatalError StopReason = "fatal_error"
)

// stopStep runs fn with an upper bound so one component can't stall the
// whole stop. A step that overruns is left running and reported when it
// eventually returns.
func (a *App) stopStep(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	log := a.log.With(logx.String("step", name))
	log.Debug("stop step begin", logx.Duration("max", max))

	// never extend the caller's deadline
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		log.Warn("stop step skipped; no time left")
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn("stop step error", logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			log.Info("stop step end", logx.Duration("took", took))
		} else {
			log.Debug("stop step end", logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		log.Warn("stop step deadline reached (continuing)",
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			if err != nil {
				log.Warn("stop step finished after deadline", logx.Err(err), logx.Duration("took", time.Since(start)))
				return
			}
			log.Info("stop step finished after deadline", logx.Duration("took", time.Since(start)))
		}()
	}
}
