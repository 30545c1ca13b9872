package llm

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/signalnine/toolsgen/internal/metrics"
)

type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	Factor       float64
	MaxDelay     time.Duration
	JitterFactor float64 // ±fraction of the computed delay
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		Factor:       2,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.1,
	}
}

// NewBackOff builds the exponential schedule for one call: BaseDelay grows by
// Factor per failed attempt up to MaxDelay, randomized by ±JitterFactor.
func (c RetryConfig) NewBackOff() *backoff.ExponentialBackOff {
	factor := c.Factor
	if factor < 1 {
		factor = 1
	}
	maxDelay := c.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(math.MaxInt64)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.BaseDelay,
		RandomizationFactor: c.JitterFactor,
		Multiplier:          factor,
		MaxInterval:         maxDelay,
		// The attempt budget bounds the loop, not elapsed time.
		MaxElapsedTime: 0,
		Stop:           backoff.Stop,
		Clock:          backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Limiter hands out request tokens.
type Limiter interface {
	Acquire(ctx context.Context, n int) error
}

// Status is the terminal state of a retried call.
type Status int

const (
	StatusSuccess Status = iota
	// StatusExhausted means every attempt failed transiently.
	StatusExhausted
	// StatusFatal means a non-retryable error; the run must abort.
	StatusFatal
	// StatusCancelled means the context ended first.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusExhausted:
		return "exhausted"
	case StatusFatal:
		return "fatal"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome is the tagged result of RetryClient.Do.
type Outcome struct {
	Response *Response
	Attempts int
	Status   Status
	Err      error
}

// RetryClient wraps a Client with a bounded retry loop. Every attempt first
// takes one token from the shared limiter.
type RetryClient struct {
	inner   Client
	limiter Limiter
	cfg     RetryConfig
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRetryClient(inner Client, limiter Limiter, cfg RetryConfig, logger *slog.Logger) *RetryClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{
		inner:   inner,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Do runs the request until it succeeds, fails fatally or the attempt budget
// is spent.
func (c *RetryClient) Do(ctx context.Context, req *Request) Outcome {
	role := string(req.Role)
	schedule := c.cfg.NewBackOff()
	var last error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Attempts: attempt - 1, Status: StatusCancelled, Err: err}
		}
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx, 1); err != nil {
				if ctx.Err() != nil {
					return Outcome{Attempts: attempt - 1, Status: StatusCancelled, Err: ctx.Err()}
				}
				return Outcome{Attempts: attempt - 1, Status: StatusFatal, Err: err}
			}
		}

		resp, err := c.inner.Complete(ctx, req)
		if err == nil && req.ResponseSchema != nil {
			err = checkStructured(req.ResponseSchema, resp)
		}
		if err == nil {
			metrics.LLMAttemptsTotal.WithLabelValues(role, "ok").Inc()
			metrics.LLMTokensTotal.WithLabelValues(role, "input").Add(float64(resp.Usage.InputTokens))
			metrics.LLMTokensTotal.WithLabelValues(role, "output").Add(float64(resp.Usage.OutputTokens))
			return Outcome{Response: resp, Attempts: attempt, Status: StatusSuccess}
		}

		if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
			return Outcome{Attempts: attempt, Status: StatusCancelled, Err: err}
		}
		last = err
		if !IsTransient(err) {
			metrics.LLMAttemptsTotal.WithLabelValues(role, "fatal").Inc()
			c.logger.Error("completion failed", "role", role, "attempt", attempt, "error", err)
			return Outcome{Attempts: attempt, Status: StatusFatal, Err: err}
		}
		metrics.LLMAttemptsTotal.WithLabelValues(role, "transient").Inc()
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.delay(schedule, err)
		c.logger.Debug("retrying completion", "role", role, "attempt", attempt, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return Outcome{Attempts: attempt, Status: StatusCancelled, Err: err}
		}
	}
	c.logger.Warn("retries exhausted", "role", role, "attempts", c.cfg.MaxAttempts, "error", last)
	return Outcome{Attempts: c.cfg.MaxAttempts, Status: StatusExhausted, Err: last}
}

// Complete adapts Do to the Client interface.
func (c *RetryClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	out := c.Do(ctx, req)
	switch out.Status {
	case StatusSuccess:
		return out.Response, nil
	case StatusExhausted:
		return nil, &ExhaustedError{Attempts: out.Attempts, Last: out.Err}
	case StatusCancelled:
		return nil, out.Err
	default:
		return nil, &FatalError{Role: req.Role, Err: out.Err}
	}
}

func (c *RetryClient) delay(schedule backoff.BackOff, err error) time.Duration {
	d := schedule.NextBackOff()
	if d == backoff.Stop {
		d = c.cfg.MaxDelay
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > d {
		d = apiErr.RetryAfter
		if c.cfg.MaxDelay > 0 && d > c.cfg.MaxDelay {
			d = c.cfg.MaxDelay
		}
	}
	return d
}

func checkStructured(rs *ResponseSchema, resp *Response) error {
	payload := resp.Structured
	if len(payload) == 0 {
		fixed, err := RepairJSON(resp.Content)
		if err != nil {
			return &APIError{Kind: KindSchemaViolation, Message: "structured output is not JSON", Err: err}
		}
		payload = fixed
	}
	if rs.Validate != nil {
		if err := rs.Validate(payload); err != nil {
			return &APIError{Kind: KindSchemaViolation, Message: "structured output does not match " + rs.Name, Err: err}
		}
	}
	resp.Structured = payload
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
