// Package polling implements the long-polling loop that pulls Telegram updates and hands them
// to a Processor in order, with at-least-once delivery.
package polling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
)

// Client is the subset of the Bot API the poller needs. *telego.Bot implements it.
type Client interface {
	GetUpdates(ctx context.Context, params *telego.GetUpdatesParams) ([]telego.Update, error)
	DeleteWebhook(ctx context.Context, params *telego.DeleteWebhookParams) error
}

// Processor handles a single update. A returned error stops the current batch.
type Processor interface {
	ProcessUpdate(ctx context.Context, update telego.Update) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, update telego.Update) error

// ProcessUpdate calls f(ctx, update).
func (f ProcessorFunc) ProcessUpdate(ctx context.Context, update telego.Update) error {
	return f(ctx, update)
}

// Poller owns the start/stop lifecycle and the offset cursor.
type Poller struct {
	client    Client
	processor Processor
	interval  time.Duration
	margin    time.Duration
	recovery  bool
	hooks     Hooks
	log       *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	params     Params
	run        *run
	inFlight   bool
	lastUpdate time.Time
}

// run is one chain of cycles. A cancelled run never touches poller state again.
type run struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	// abort, reason and wake are guarded by Poller.mu.
	abort  bool
	reason string
	wake   chan struct{}
	done   chan struct{}
}

// New creates a stopped poller.
func New(client Client, processor Processor, cfg Config, logger *slog.Logger) (*Poller, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if processor == nil {
		return nil, ErrNoProcessor
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Poller{
		client:    client,
		processor: processor,
		interval:  cfg.Interval,
		margin:    cfg.RequestMargin,
		recovery:  cfg.BadRejectionRecovery,
		hooks:     cfg.Hooks,
		log:       logger,
		now:       time.Now,
		params:    cfg.Params,
	}, nil
}

// Start launches the polling loop. Starting an active poller is a no-op unless opts.Restart is
// set, in which case the current run is cancelled and a fresh one is launched.
// The loop keeps the values of ctx but not its cancellation; use Stop to end it.
func (p *Poller) Start(ctx context.Context, opts StartOptions) error {
	p.mu.Lock()
	if p.run == nil {
		p.launchLocked(ctx)
		p.mu.Unlock()
		p.notify(p.hooks.OnStarted)
		return nil
	}
	p.mu.Unlock()

	if !opts.Restart {
		return nil
	}
	p.notify(p.hooks.OnRestart)
	if err := p.Stop(ctx, StopOptions{Cancel: true, Reason: "polling restart"}); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		p.launchLocked(ctx)
	}
	return nil
}

// Stop ends the polling loop. With opts.Cancel the in-flight fetch is cancelled and Stop returns
// at once; otherwise Stop waits for the current cycle to finish, bounded by ctx. If ctx expires
// first the stop stays requested and the run halts on its own after the cycle.
func (p *Poller) Stop(ctx context.Context, opts StopOptions) error {
	p.mu.Lock()
	r := p.run
	if r == nil {
		p.mu.Unlock()
		return nil
	}

	if opts.Cancel {
		r.cancel()
		p.run = nil
		p.inFlight = false
		p.mu.Unlock()
		p.log.Info("Polling cancelled", "run_id", r.id, "reason", opts.Reason)
		p.stopped(opts.Reason)
		return nil
	}

	if !r.abort {
		r.abort = true
		r.reason = opts.Reason
		close(r.wake)
	}
	p.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsActive reports whether a run exists, including the pause between cycles.
func (p *Poller) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// IsPolling reports whether a cycle is executing right now.
func (p *Poller) IsPolling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Offset returns the identifier of the next update to request.
func (p *Poller) Offset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params.Offset
}

// State returns a snapshot of the poller.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := State{
		Active:     p.run != nil,
		Polling:    p.inFlight,
		Offset:     p.params.Offset,
		LastUpdate: p.lastUpdate,
	}
	if p.run != nil {
		state.RunID = p.run.id
		state.Stopping = p.run.abort
	}
	return state
}

func (p *Poller) launchLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		id:     uuid.NewString(),
		ctx:    runCtx,
		cancel: cancel,
		wake:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.run = r
	p.log.Info("Polling started", "run_id", r.id, "offset", p.params.Offset, "interval", p.interval)
	go p.loop(r)
}

func (p *Poller) stopped(reason string) {
	if p.hooks.OnStopped != nil {
		p.hooks.OnStopped(reason)
	}
}

func (p *Poller) notify(fn func()) {
	if fn != nil {
		fn()
	}
}
