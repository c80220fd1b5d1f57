// Package schedule reruns bootstrap work periodically for the serve command.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"

	. "github.com/mittwald/owui-bootstrap/internal/logging"
)

// DefaultSchedule refreshes discovery and seeding four times a day.
const DefaultSchedule = "@every 6h"

var parser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// ParseDuration parses "30s", "5m", "2h" and the day/week forms "1d", "1w".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if strings.HasSuffix(s, suffix) {
			n, err := strconv.Atoi(strings.TrimSuffix(s, suffix))
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", s, err)
			}
			return time.Duration(n) * unit, nil
		}
	}
	return time.ParseDuration(s)
}

// Parse accepts a 5-field cron expression, a descriptor such as "@daily" or
// "@every 6h", or a bare duration like "6h" or "1d".
func Parse(expr string) (cronlib.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if !strings.HasPrefix(expr, "@") && !strings.Contains(expr, " ") {
		d, err := ParseDuration(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("invalid schedule %q: interval below one second", expr)
		}
		return cronlib.Every(d), nil
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// cronLogger forwards library events to the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	L_trace("schedule: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	L_error("schedule: "+msg, append(keysAndValues, "error", err)...)
}

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Run executes job once right away and then on every tick of expr until
// ctx is cancelled. A run still in progress when the next tick fires makes
// that tick a no-op. Job errors are logged and don't stop the loop.
func Run(ctx context.Context, expr, name string, job Job) error {
	sched, err := Parse(expr)
	if err != nil {
		return err
	}

	runOnce := func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			L_error("scheduled job failed", "job", name, "error", err)
			return
		}
		L_elapsed(start, "scheduled job finished", "job", name)
	}

	runOnce()
	if ctx.Err() != nil {
		return nil
	}

	logger := cronLogger{}
	c := cronlib.New(
		cronlib.WithParser(parser),
		cronlib.WithLogger(logger),
		cronlib.WithChain(cronlib.Recover(logger), cronlib.SkipIfStillRunning(logger)),
	)
	c.Schedule(sched, cronlib.FuncJob(runOnce))
	c.Start()
	L_info("scheduler started", "job", name, "schedule", expr, "next", sched.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	L_info("scheduler stopped", "job", name)
	return nil
}
