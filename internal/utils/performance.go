package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowThreshold is the duration above which a timed operation is logged at warn level.
const SlowThreshold = 10 * time.Minute

// Timer measures an operation and logs its duration on Stop
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
	now   func() time.Time
}

// NewTimer starts a timer for the named operation
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
		now:   time.Now,
	}
}

// Stop logs the elapsed time and returns it
func (t *Timer) Stop() time.Duration {
	return t.StopWithFields(nil)
}

// StopWithFields logs the elapsed time together with extra fields
func (t *Timer) StopWithFields(fields map[string]interface{}) time.Duration {
	duration := t.now().Sub(t.start)

	ev := t.log.Debug()
	if duration > SlowThreshold {
		ev = t.log.Warn()
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Str("operation", t.name).
		Dur("duration_ms", duration).
		Float64("duration_seconds", duration.Seconds()).
		Msg("Operation timing")

	return duration
}

// OperationTimer starts a timer and returns a func that stops it, for use with defer
func OperationTimer(operation string, log zerolog.Logger) func() {
	t := NewTimer(operation, log)
	return func() { t.Stop() }
}
