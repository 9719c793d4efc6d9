package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// request is work handed to the poll loop from IPC or the web server.
type request struct {
	command int  // command to apply; ignored when fetch is set
	fetch   bool // run a full fetch cycle now
	reply   chan result
}

type result struct {
	action Action
	err    error
}

// Poller runs fetch cycles on a fixed period. All fetching and dispatching
// happens on the goroutine that calls Run.
type Poller struct {
	fetcher  *Fetcher
	dispatch *Dispatcher
	state    *State
	interval time.Duration
	requests chan request
	logger   zerolog.Logger
} // type Poller struct

func NewPoller(fetcher *Fetcher, dispatch *Dispatcher, state *State, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		dispatch: dispatch,
		state:    state,
		interval: interval,
		requests: make(chan request),
		logger:   logger,
	}
} // func NewPoller

// Run executes the poll loop until context cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Str("url", p.fetcher.URL()).Dur("interval", p.interval).Msg("poll loop started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poll loop stopped")
			return ctx.Err()

		case <-ticker.C:
			p.cycle(ctx)

		case req := <-p.requests:
			var res result
			if req.fetch {
				res.action, res.err = p.cycle(ctx)
			} else {
				res.action, res.err = p.dispatch.Apply(req.command)
				p.logResult("inject", res.action, res.err)
			}
			req.reply <- res
		}
	}
} // func Run

// cycle runs one fetch cycle: fetch, then dispatch on success.
func (p *Poller) cycle(ctx context.Context) (Action, error) {
	id := uuid.New().String()
	logger := p.logger.With().Str("cycle", id).Logger()

	p.state.mu.Lock()
	p.state.lastFetch = time.Now()
	p.state.lastCycle = id
	p.state.mu.Unlock()

	body, err := p.fetcher.Fetch(ctx)
	if err != nil {
		var se *StatusError
		switch {
		case errors.Is(err, ErrLinkDown):
			logger.Warn().Err(err).Msg("skipping fetch cycle")
		case errors.As(err, &se):
			logger.Error().Int("status", se.Code).Msg("fetch error")
		default:
			logger.Error().Err(err).Msg("fetch failed")
		}
		p.setErr(err)
		return ActionNone, err
	}
	logger.Debug().Str("body", body).Msg("fetched")
	p.setErr(nil)

	action, err := p.dispatch.Dispatch(body)
	p.logResult(id, action, err)
	return action, err
} // func cycle

func (p *Poller) setErr(err error) {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if err != nil {
		p.state.lastErr = err.Error()
	} else {
		p.state.lastErr = ""
	}
	p.state.commitLocked()
} // func setErr

func (p *Poller) logResult(src string, action Action, err error) {
	switch {
	case err == nil:
		if action != ActionNone {
			p.logger.Debug().Str("src", src).Stringer("action", action).Msg("dispatched")
		}
	case errors.Is(err, ErrInvalidCommand):
		// already logged by the dispatcher
	default:
		p.logger.Error().Err(err).Str("src", src).Stringer("action", action).Msg("player command failed")
	}
} // func logResult

// Apply hands a command to the poll loop and waits for the result.
func (p *Poller) Apply(ctx context.Context, command int) (Action, error) {
	return p.submit(ctx, request{command: command})
}

// FetchNow runs a fetch cycle on the poll loop without waiting for the tick.
func (p *Poller) FetchNow(ctx context.Context) (Action, error) {
	return p.submit(ctx, request{fetch: true})
}

func (p *Poller) submit(ctx context.Context, req request) (Action, error) {
	req.reply = make(chan result, 1)
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return ActionNone, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.action, res.err
	case <-ctx.Done():
		return ActionNone, ctx.Err()
	}
} // func submit
