package polling

import (
	"time"

	"github.com/mymmrac/telego"
)

const (
	// DefaultInterval is the pause between two cycles.
	DefaultInterval = 300 * time.Millisecond
	// DefaultTimeout is the server-side long-poll wait in seconds.
	DefaultTimeout = 10
	// DefaultRequestMargin is added to the long-poll wait to get the deadline of one request.
	DefaultRequestMargin = 10 * time.Second
)

// Params are the getUpdates parameters sent on every fetch.
type Params struct {
	// Offset is the identifier of the first update to return.
	Offset int
	// Limit caps the batch size (0 lets the server decide).
	Limit int
	// Timeout is the long-poll wait in seconds.
	Timeout int
	// AllowedUpdates filters update kinds (empty keeps the previous server setting).
	AllowedUpdates []string
}

func (p Params) telego() *telego.GetUpdatesParams {
	params := &telego.GetUpdatesParams{
		Offset:  p.Offset,
		Limit:   p.Limit,
		Timeout: p.Timeout,
	}
	if len(p.AllowedUpdates) > 0 {
		params.AllowedUpdates = append([]string(nil), p.AllowedUpdates...)
	}
	return params
}

// Hooks receives lifecycle and error notifications. Every field is optional.
type Hooks struct {
	// OnStarted fires when a stopped poller starts.
	OnStarted func()
	// OnStopped fires once the poller is inactive.
	OnStopped func(reason string)
	// OnRestart fires before a restart cancels the current run.
	OnRestart func()
	// OnError receives recoverable fetch and processing errors.
	// When nil the error is logged.
	OnError func(err error)
	// OnFatal receives *FatalError values. When nil the error is logged at fatal level.
	OnFatal func(err error)
	// OnOffset fires after a cycle moved the offset.
	OnOffset func(offset int)
}

// Config configures a Poller.
type Config struct {
	// Interval is the delay between the end of one cycle and the start of the next.
	Interval time.Duration
	// Params are the initial getUpdates parameters.
	Params Params
	// RequestMargin is added to Params.Timeout to bound every getUpdates request.
	RequestMargin time.Duration
	// BadRejectionRecovery enables the forced acknowledgement fetch after a processing failure.
	BadRejectionRecovery bool
	// Hooks receives notifications.
	Hooks Hooks
}

// DefaultConfig returns a Config with the default interval and long-poll timeout.
func DefaultConfig() Config {
	return Config{
		Interval:      DefaultInterval,
		RequestMargin: DefaultRequestMargin,
		Params:        Params{Timeout: DefaultTimeout},
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.RequestMargin <= 0 {
		c.RequestMargin = DefaultRequestMargin
	}
	if c.Params.Timeout < 0 {
		c.Params.Timeout = 0
	}
	if c.Params.Offset < 0 {
		c.Params.Offset = 0
	}
	return c
}

// StartOptions controls Start.
type StartOptions struct {
	// Restart cancels an active run and launches a fresh one.
	Restart bool
}

// StopOptions controls Stop.
type StopOptions struct {
	// Cancel aborts the in-flight fetch and discards its result instead of letting it finish.
	Cancel bool
	// Reason is passed to Hooks.OnStopped.
	Reason string
}

// State is a point-in-time snapshot of a Poller.
type State struct {
	Active     bool      `json:"active"`
	Polling    bool      `json:"polling"`
	// Stopping means a graceful stop is pending and the run halts after its current cycle.
	Stopping   bool      `json:"stopping"`
	Offset     int       `json:"offset"`
	LastUpdate time.Time `json:"last_update,omitzero"`
	RunID      string    `json:"run_id,omitempty"`
}
