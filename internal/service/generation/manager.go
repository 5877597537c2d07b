// Package generation drives the language model providers and paces their output
// to the client as sentence-sized chunks.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tutor/backend/internal/config"
	"github.com/zhouzirui/z-tutor/backend/internal/metrics"
	"github.com/zhouzirui/z-tutor/backend/internal/service/ai"
	"github.com/zhouzirui/z-tutor/backend/internal/service/prompt"
)

// ProviderFallback is reported as Result.Provider when canned text was used.
const ProviderFallback = "fallback"

// ChunkFunc delivers one chunk. An error stops the stream.
type ChunkFunc func(text string) error

// Request is one generation.
type Request struct {
	Prompt prompt.Prompt
	// FallbackLine is spoken when no provider is reachable.
	FallbackLine string
	// ApologyLine is spoken when the last provider answered with garbage.
	ApologyLine string
}

// Result describes a finished stream. Text equals the concatenation of every
// chunk handed to the ChunkFunc.
type Result struct {
	Text     string
	Provider string
	Fallback bool
	IsError  bool
	Attempts int
	// Err is the last provider failure, if any.
	Err error
}

// Manager owns the retry and failover policy.
type Manager struct {
	primary   ai.Provider
	secondary ai.Provider
	cfg       config.GenerationConfig
}

// NewManager creates a manager. secondary may be nil.
func NewManager(cfg config.GenerationConfig, primary, secondary ai.Provider) *Manager {
	return &Manager{primary: primary, secondary: secondary, cfg: cfg}
}

// stream tracks what has already reached the client.
type stream struct {
	ctx       context.Context
	interval  time.Duration
	onChunk   ChunkFunc
	text      strings.Builder
	delivered bool
}

func (s *stream) deliver(chunk string) error {
	if !s.delivered && strings.TrimSpace(chunk) == "" {
		return nil
	}
	if err := pace(s.ctx, s.interval); err != nil {
		return err
	}
	if err := s.onChunk(chunk); err != nil {
		return err
	}
	s.text.WriteString(chunk)
	s.delivered = true
	return nil
}

// errDelivery marks a failure of the ChunkFunc rather than the provider.
type errDelivery struct{ err error }

func (e errDelivery) Error() string { return "deliver chunk: " + e.err.Error() }
func (e errDelivery) Unwrap() error { return e.err }

// Stream generates a reply. It returns a non-nil error only when ctx is
// cancelled or the ChunkFunc fails; provider failures degrade into a
// fallback or error Result. Only transient failures end in the persona's
// fallback line with Fallback set; when the last provider tried answered with
// malformed output the apology line is used and IsError is set instead.
func (m *Manager) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (Result, error) {
	s := &stream{ctx: ctx, interval: m.cfg.ChunkInterval, onChunk: onChunk}
	result := Result{}

	providers := []ai.Provider{m.primary}
	if m.secondary != nil {
		providers = append(providers, m.secondary)
	}

	var lastErr error
	for i, provider := range providers {
		if provider == nil {
			continue
		}
		var err error
		if i == 0 {
			err = m.withRetry(ctx, provider, req.Prompt, s, &result)
		} else {
			result.Attempts++
			err = m.attempt(ctx, provider, req.Prompt, s)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Text: s.text.String(), Provider: provider.Name(), Attempts: result.Attempts}, ctxErr
		}
		var de errDelivery
		if errors.As(err, &de) {
			return Result{Text: s.text.String(), Provider: provider.Name(), Attempts: result.Attempts}, de.err
		}

		if err == nil {
			result.Text, result.Provider = s.text.String(), provider.Name()
			return result, nil
		}

		lastErr = err
		log.Warn().Err(err).Str("provider", provider.Name()).Int("attempts", result.Attempts).Msg("generation provider failed")

		if s.delivered {
			// 已经推送过部分内容，换模型会重复或拼接文本，直接以已有内容收尾。
			result.Text, result.Provider = s.text.String(), provider.Name()
			result.Fallback, result.Err = true, err
			return result, nil
		}
	}

	result.Err = lastErr
	result.Provider = ProviderFallback
	line := req.FallbackLine
	if errors.Is(lastErr, ai.ErrMalformedResponse) {
		result.IsError = true
		line = req.ApologyLine
	} else {
		result.Fallback = true
	}

	for _, chunk := range SplitText(line, m.cfg.MaxChunkRunes) {
		if err := s.deliver(chunk); err != nil {
			return Result{Text: s.text.String(), Provider: ProviderFallback, Attempts: result.Attempts}, err
		}
	}
	result.Text = s.text.String()
	return result, nil
}

func (m *Manager) withRetry(ctx context.Context, provider ai.Provider, p prompt.Prompt, s *stream, result *Result) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.RetryInitial
	bo.MaxInterval = m.cfg.RetryMax
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(m.cfg.MaxRetries, 0))), ctx)

	op := func() error {
		result.Attempts++
		err := m.attempt(ctx, provider, p, s)
		var de errDelivery
		switch {
		case err == nil:
			return nil
		case s.delivered, errors.As(err, &de), errors.Is(err, ai.ErrMalformedResponse):
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Str("provider", provider.Name()).Dur("wait", wait).Msg("retrying generation")
	}
	return backoff.RetryNotify(op, policy, notify)
}

// attempt runs one provider call and forwards its chunks.
func (m *Manager) attempt(ctx context.Context, provider ai.Provider, p prompt.Prompt, s *stream) (err error) {
	defer func() {
		metrics.GenerationAttempts.WithLabelValues(provider.Name(), outcome(err)).Inc()
	}()

	actx := ctx
	if m.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, m.cfg.AttemptTimeout)
		defer cancel()
	}

	sr, err := provider.Stream(actx, p)
	if err != nil {
		return err
	}
	defer sr.Close()

	sp := newSplitter(m.cfg.MaxChunkRunes)
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		for _, chunk := range sp.Push(msg.Content) {
			if err := s.deliver(chunk); err != nil {
				return errDelivery{err}
			}
		}
	}
	if rest := sp.Flush(); rest != "" {
		if err := s.deliver(rest); err != nil {
			return errDelivery{err}
		}
	}

	if !s.delivered {
		return fmt.Errorf("%s returned no text: %w", provider.Name(), ai.ErrMalformedResponse)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ai.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return "error"
}

func pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
