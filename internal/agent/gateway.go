package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/gptmafia/internal/ai"
	"github.com/kiliankoe/gptmafia/internal/game"
)

type Options struct {
	DefaultProvider string
	DefaultModel    string
	SystemPrompt    string
	Retries         int           // extra attempts after a retryable failure
	Backoff         time.Duration // wait before the first retry, doubled after
}

// Gateway implements game.Gateway over a set of named AI providers. Each seat
// picks a provider and model; unknown or empty ones fall back to the
// defaults.
type Gateway struct {
	providers map[string]ai.Provider
	opts      Options
}

var _ game.Gateway = (*Gateway)(nil)

func New(providers map[string]ai.Provider, opts Options) *Gateway {
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &Gateway{providers: providers, opts: opts}
}

// Resolve returns the provider name and model a player's turns go to.
func (g *Gateway) Resolve(p game.Player) (string, string) {
	name := p.Provider
	if _, ok := g.providers[name]; !ok {
		name = g.opts.DefaultProvider
	}
	model := p.Model
	if model == "" {
		model = g.opts.DefaultModel
	}
	return name, model
}

// Models lists the models of every provider that can enumerate them.
func (g *Gateway) Models(ctx context.Context) map[string][]string {
	out := map[string][]string{}
	for name, p := range g.providers {
		lister, ok := p.(ai.ModelLister)
		if !ok {
			continue
		}
		models, err := lister.Models(ctx)
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("list models failed")
			continue
		}
		out[name] = models
	}
	return out
}

// RequestTurn asks the player's provider for one reply. It returns
// game.ErrAgentTimeout once ctx expires, even if the provider keeps going,
// and game.ErrAgentError for failures and empty replies.
func (g *Gateway) RequestTurn(ctx context.Context, req game.TurnRequest) (game.Reply, error) {
	name, model := g.Resolve(req.Player)
	provider := g.providers[name]
	if provider == nil {
		return game.Reply{}, fmt.Errorf("no provider %q: %w", name, game.ErrAgentError)
	}
	system := SystemPrompt(g.opts.SystemPrompt, req, model)
	prompt := TurnPrompt(req)

	backoff := g.opts.Backoff
	var lastErr error
	for attempt := 0; attempt <= g.opts.Retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return game.Reply{}, classify(ctx, ctx.Err())
			case <-t.C:
			}
			backoff *= 2
		}
		text, err := call(ctx, provider, model, system, prompt)
		if err == nil {
			return game.Reply{Text: text}, nil
		}
		lastErr = classify(ctx, err)
		log.Debug().Err(err).Str("player", req.Player.Name).Str("provider", name).Int("attempt", attempt).Msg("agent call failed")
		if !retryable(ctx, err) {
			break
		}
	}
	return game.Reply{}, lastErr
}

var errEmptyReply = errors.New("empty reply")

// call runs one completion and stops waiting for it when ctx ends.
func call(ctx context.Context, p ai.Provider, model, system, prompt string) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := p.CompleteWithSystem(ctx, model, system, prompt)
		ch <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		text := strings.TrimSpace(r.text)
		if text == "" || text == "..." {
			return "", errEmptyReply
		}
		return text, nil
	}
}

func classify(ctx context.Context, err error) error {
	var ne net.Error
	switch {
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", game.ErrAgentTimeout, err)
	case errors.As(err, &ne) && ne.Timeout():
		return fmt.Errorf("%w: %v", game.ErrAgentTimeout, err)
	}
	return fmt.Errorf("%w: %v", game.ErrAgentError, err)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *ai.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	return errors.Is(err, errEmptyReply) || errors.As(err, &ne)
}
