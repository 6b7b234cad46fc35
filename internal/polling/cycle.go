package polling

import (
	"context"
	"errors"
	"time"

	"github.com/mymmrac/telego"

	"github.com/codex-k8s/telegram-poller/internal/log"
)

// loop runs cycles until the run is aborted or cancelled.
func (p *Poller) loop(r *run) {
	defer close(r.done)
	defer r.cancel()

	for {
		p.cycle(r)
		if !p.reschedule(r) {
			break
		}
	}

	p.mu.Lock()
	if p.run != r {
		// Cancelled: Stop already finalised the poller.
		p.mu.Unlock()
		return
	}
	p.run = nil
	reason := r.reason
	p.mu.Unlock()
	p.log.Info("Polling stopped", "run_id", r.id, "reason", reason)
	p.stopped(reason)
}

// reschedule waits for the interval and reports whether the next cycle should run.
func (p *Poller) reschedule(r *run) bool {
	p.mu.Lock()
	abort := r.abort
	p.mu.Unlock()
	if abort || r.ctx.Err() != nil {
		return false
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.wake:
		return false
	case <-r.ctx.Done():
		return false
	}
}

// cycle performs one fetch-process round and absorbs its errors.
func (p *Poller) cycle(r *run) {
	if !p.setInFlight(r, true) {
		return
	}
	defer p.setInFlight(r, false)

	startOffset := p.Offset()
	updates, err := p.fetch(r.ctx, p.currentParams())
	if r.ctx.Err() != nil {
		return
	}
	if err == nil {
		err = p.process(r, updates)
	}
	if r.ctx.Err() != nil {
		return
	}
	if err != nil {
		p.handleError(r, err)
	}

	if offset := p.Offset(); offset != startOffset && p.hooks.OnOffset != nil {
		p.hooks.OnOffset(offset)
	}
}

// fetch calls getUpdates and takes over from a webhook once if the Bot API reports a conflict.
func (p *Poller) fetch(ctx context.Context, params Params) ([]telego.Update, error) {
	updates, err := p.getUpdates(ctx, params)
	if err == nil {
		return updates, nil
	}
	if !IsWebhookConflict(err) || ctx.Err() != nil {
		return nil, &FetchError{Err: err}
	}

	p.log.Warn("Webhook is set, deleting it to continue with long polling", "error", err)
	if err := p.deleteWebhook(ctx); err != nil {
		return nil, &FetchError{Err: err}
	}
	updates, err = p.getUpdates(ctx, params)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	return updates, nil
}

func (p *Poller) deleteWebhook(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.margin)
	defer cancel()
	return p.client.DeleteWebhook(ctx, &telego.DeleteWebhookParams{})
}

// getUpdates bounds a single request by the long-poll wait plus the request margin.
func (p *Poller) getUpdates(ctx context.Context, params Params) ([]telego.Update, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(params.Timeout)*time.Second+p.margin)
	defer cancel()
	return p.client.GetUpdates(ctx, params.telego())
}

// process advances the offset past each update before handing it to the processor, so a
// failing update is acknowledged by the next fetch. Updates after a failure are left for the
// next fetch.
func (p *Poller) process(r *run, updates []telego.Update) error {
	p.mu.Lock()
	if r.ctx.Err() != nil {
		p.mu.Unlock()
		return nil
	}
	p.lastUpdate = p.now()
	p.mu.Unlock()

	for _, update := range updates {
		p.mu.Lock()
		if r.ctx.Err() != nil {
			p.mu.Unlock()
			return nil
		}
		if next := update.UpdateID + 1; next > p.params.Offset {
			p.params.Offset = next
		}
		p.mu.Unlock()

		if err := p.processor.ProcessUpdate(r.ctx, update); err != nil {
			return &ProcessingError{UpdateID: update.UpdateID, Err: err}
		}
	}
	return nil
}

func (p *Poller) handleError(r *run, err error) {
	var procErr *ProcessingError
	if p.recovery && errors.As(err, &procErr) {
		if recErr := p.acknowledge(r.ctx); recErr != nil {
			if r.ctx.Err() != nil {
				return
			}
			p.fatal(&FatalError{Cause: procErr, RecoveryErr: recErr})
			return
		}
	}
	p.report(err)
}

// acknowledge fetches a single update at the current offset without waiting, which makes the
// Bot API forget every update below the offset.
func (p *Poller) acknowledge(ctx context.Context) error {
	params := p.currentParams()
	params.Limit = 1
	params.Timeout = 0
	p.log.Debug("Acknowledging offset after processing failure", "offset", params.Offset)
	_, err := p.getUpdates(ctx, params)
	return err
}

func (p *Poller) report(err error) {
	if p.hooks.OnError != nil {
		p.hooks.OnError(err)
		return
	}
	p.log.Error("Polling error", "error", err)
}

func (p *Poller) fatal(err *FatalError) {
	if p.hooks.OnFatal != nil {
		p.hooks.OnFatal(err)
		return
	}
	p.log.Log(context.Background(), log.LevelFatal, "Polling offset recovery failed", "error", err)
}

func (p *Poller) currentParams() Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	params := p.params
	params.AllowedUpdates = append([]string(nil), p.params.AllowedUpdates...)
	return params
}

// setInFlight updates the in-flight flag while r is the current run and reports whether it is.
func (p *Poller) setInFlight(r *run, value bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != r {
		return false
	}
	p.inFlight = value
	return true
}
