package workout

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stopwatch measures active time between an origin and now, excluding every
// paused interval. Elapsed time is always derived from timestamps, so a
// process that was suspended for a while still reports the right value.
type Stopwatch struct {
	origin   time.Time
	paused   time.Duration // closed paused intervals
	pausedAt time.Time     // zero while running
}

// NewStopwatch returns a running stopwatch started at origin.
func NewStopwatch(origin time.Time) Stopwatch {
	return Stopwatch{origin: origin}
}

// RestoreStopwatch rebuilds a stopwatch from persisted session fields.
func RestoreStopwatch(origin time.Time, paused time.Duration, pausedAt *time.Time) Stopwatch {
	sw := Stopwatch{origin: origin, paused: paused}
	if pausedAt != nil {
		sw.pausedAt = *pausedAt
	}
	return sw
}

// Running reports whether time is currently accumulating.
func (s Stopwatch) Running() bool { return s.pausedAt.IsZero() }

// Elapsed returns the active time at now.
func (s Stopwatch) Elapsed(now time.Time) time.Duration {
	end := now
	if !s.Running() {
		end = s.pausedAt
	}
	d := end.Sub(s.origin) - s.paused
	if d < 0 {
		return 0
	}
	return d
}

// PausedTotal returns the sum of closed paused intervals.
func (s Stopwatch) PausedTotal() time.Duration { return s.paused }

// Pause freezes accumulation at now. Pausing twice keeps the first instant.
func (s *Stopwatch) Pause(now time.Time) {
	if s.Running() {
		s.pausedAt = now
	}
}

// Resume continues accumulation from the frozen value.
func (s *Stopwatch) Resume(now time.Time) {
	if s.Running() {
		return
	}
	if now.After(s.pausedAt) {
		s.paused += now.Sub(s.pausedAt)
	}
	s.pausedAt = time.Time{}
}

// Reset restarts the stopwatch from zero at now, keeping the paused state.
func (s *Stopwatch) Reset(now time.Time) {
	running := s.Running()
	*s = Stopwatch{origin: now}
	if !running {
		s.pausedAt = now
	}
}

// Seconds truncates a duration to whole seconds.
func Seconds(d time.Duration) int {
	return int(d / time.Second)
}

// RestState is the lifecycle of the rest countdown.
type RestState string

const (
	RestIdle    RestState = "IDLE"
	RestRunning RestState = "RUNNING"
	RestElapsed RestState = "ELAPSED"
	RestSkipped RestState = "SKIPPED"
)

// RestTimer counts down between sets. It runs independently of the exercise
// timer but is suspended together with the session.
type RestTimer struct {
	state    RestState
	duration time.Duration
	clock    Stopwatch
}

// State returns the current rest state; the zero value is IDLE.
func (r *RestTimer) State() RestState {
	if r.state == "" {
		return RestIdle
	}
	return r.state
}

// Duration returns the length of the current or last countdown.
func (r *RestTimer) Duration() time.Duration { return r.duration }

// Start begins a countdown of d at now, replacing any countdown in progress.
func (r *RestTimer) Start(now time.Time, d time.Duration) {
	r.state = RestRunning
	r.duration = d
	r.clock = NewStopwatch(now)
}

// Remaining returns the time left; zero unless RUNNING.
func (r *RestTimer) Remaining(now time.Time) time.Duration {
	if r.State() != RestRunning {
		return 0
	}
	left := r.duration - r.clock.Elapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

// Skip stops a running countdown early. It reports whether anything changed.
func (r *RestTimer) Skip() bool {
	if r.State() != RestRunning {
		return false
	}
	r.state = RestSkipped
	return true
}

// Suspend freezes a running countdown.
func (r *RestTimer) Suspend(now time.Time) { r.clock.Pause(now) }

// Continue unfreezes a suspended countdown.
func (r *RestTimer) Continue(now time.Time) { r.clock.Resume(now) }

// Advance applies the passage of time: a RUNNING countdown that reached zero
// becomes ELAPSED, and an ELAPSED or SKIPPED timer settles back to IDLE one
// step later so observers see the terminal state once. It reports whether the
// state changed.
func (r *RestTimer) Advance(now time.Time) bool {
	switch r.State() {
	case RestRunning:
		if r.clock.Running() && r.Remaining(now) == 0 {
			r.state = RestElapsed
			return true
		}
	case RestElapsed, RestSkipped:
		r.state = RestIdle
		return true
	}
	return false
}

// Reset returns the timer to IDLE.
func (r *RestTimer) Reset() {
	*r = RestTimer{}
}

// RestPreset is a named quick-pick rest duration.
type RestPreset struct {
	Name     string
	Duration time.Duration
}

// DefaultRestPresets are offered when the configuration names none.
var DefaultRestPresets = []RestPreset{
	{Name: "30s", Duration: 30 * time.Second},
	{Name: "60s", Duration: 60 * time.Second},
	{Name: "90s", Duration: 90 * time.Second},
	{Name: "2:00", Duration: 2 * time.Minute},
	{Name: "3:00", Duration: 3 * time.Minute},
	{Name: "5:00", Duration: 5 * time.Minute},
}

// ParseRestDuration accepts a Go duration ("90s", "2m30s"), a clock value
// ("2:30") or a bare number of seconds ("45").
func ParseRestDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty rest duration")
	}
	if m, sec, ok := strings.Cut(s, ":"); ok {
		mm, err1 := strconv.Atoi(m)
		ss, err2 := strconv.Atoi(sec)
		if err1 != nil || err2 != nil || mm < 0 || ss < 0 || ss > 59 {
			return 0, fmt.Errorf("invalid rest duration %q", s)
		}
		return time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid rest duration %q", s)
	}
	return d, nil
}

// FormatClock renders a duration as m:ss, or h:mm:ss past one hour.
func FormatClock(d time.Duration) string {
	total := Seconds(d)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
