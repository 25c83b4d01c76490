// Package gateway is the single entry point for remote model inference. It
// validates credentials once per instance, applies the retry policy to
// classified failures, and always returns a well-typed result, falling back
// to deterministic offline payloads when remote calls are impossible.
package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matna449/annual-report-analyzer/internal/chunk"
	"github.com/matna449/annual-report-analyzer/internal/config"
	"github.com/matna449/annual-report-analyzer/internal/resilience"
)

// CallStatus is the provenance of a result's payload.
type CallStatus string

const (
	// StatusOK: payload from the requested model on the original input.
	StatusOK CallStatus = "ok"
	// StatusDegraded: payload from the fallback model or a shrunk input, or a
	// rate-limited abort carrying the offline payload.
	StatusDegraded CallStatus = "degraded"
	// StatusMock: offline payload.
	StatusMock CallStatus = "mock"
)

// Route names the primary and fallback model for a task.
type Route struct {
	Primary  string
	Fallback string
}

// Request is one inference call. An empty Model selects the task's primary.
// Prompt is sent ahead of Input and is never shrunk.
type Request struct {
	Model  string
	Task   Task
	Prompt string
	Input  string
	Params Params
}

// Result is the outcome of Call. Payload is always set.
type Result struct {
	Requested string        `json:"requested"`
	Model     string        `json:"model"`
	Task      Task          `json:"task"`
	Status    CallStatus    `json:"status"`
	Payload   Payload       `json:"payload"`
	Attempts  int           `json:"attempts"`
	Latency   time.Duration `json:"latency"`
	Shrunk    bool          `json:"shrunk,omitempty"`
	Err       error         `json:"-"`
}

// Live reports whether the payload came from a remote model.
func (r Result) Live() bool {
	return r.Err == nil && r.Status != StatusMock
}

// Kind returns the classification of the failure that ended the call.
func (r Result) Kind() resilience.Kind {
	return resilience.KindOf(r.Err)
}

// Config configures a Gateway.
type Config struct {
	Models            map[Task]Route
	Policy            resilience.RetryPolicy
	MaxInputTokens    int
	RequestTimeout    time.Duration
	RequestsPerMinute int
	Breakers          resilience.CircuitBreakerConfig
}

// ConfigFrom builds a gateway Config from application config.
func ConfigFrom(cfg *config.Config) Config {
	models := make(map[Task]Route, len(cfg.Gateway.Models))
	for task, r := range cfg.Gateway.Models {
		models[Task(task)] = Route{Primary: r.Primary, Fallback: r.Fallback}
	}

	policy := resilience.NewRetryPolicy(cfg.Analysis.MaxRetries, cfg.Analysis.RetryBaseDelay())
	policy.OnRetry = resilience.RetryLogger("gateway", "infer")

	return Config{
		Models:            models,
		Policy:            policy,
		MaxInputTokens:    cfg.Analysis.MaxInputTokens,
		RequestTimeout:    cfg.Analysis.RequestTimeout(),
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		Breakers:          resilience.NewCircuitConfig(cfg.Gateway.BreakerThreshold, cfg.Gateway.BreakerResetSecs),
	}
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLimiter replaces the request limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(g *Gateway) {
		g.limiter = l
	}
}

// Gateway performs inference calls with retries, shrinking and fallbacks.
type Gateway struct {
	backend  Backend
	cfg      Config
	valid    atomic.Bool
	limiter  *rate.Limiter
	breakers *resilience.ServiceBreakers
}

// New creates a gateway and validates credentials once. A nil backend
// yields a gateway that only serves offline payloads.
func New(ctx context.Context, backend Backend, cfg Config, opts ...Option) *Gateway {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60)
	}
	g := &Gateway{
		backend:  backend,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		breakers: resilience.NewServiceBreakers(cfg.Breakers),
	}
	for _, o := range opts {
		o(g)
	}
	g.Revalidate(ctx)
	return g
}

// Available reports whether remote calls are enabled.
func (g *Gateway) Available() bool {
	return g.valid.Load()
}

// Route returns the routing entry for task.
func (g *Gateway) Route(task Task) Route {
	return g.cfg.Models[task]
}

// Revalidate re-runs the credential check and returns the new availability.
// Transient probe failures leave credentials presumed valid.
func (g *Gateway) Revalidate(ctx context.Context) bool {
	if g.backend == nil {
		g.valid.Store(false)
		return false
	}

	prober, ok := g.backend.(Prober)
	if !ok {
		g.valid.Store(true)
		return true
	}

	err := prober.Probe(ctx)
	valid := true
	if err != nil {
		switch resilience.KindOf(err) {
		case resilience.KindModelLoading, resilience.KindUnavailable, resilience.KindTimeout, resilience.KindRateLimited:
			zap.L().Warn("gateway: credential probe inconclusive, assuming valid", zap.Error(err))
		default:
			valid = false
			zap.L().Warn("gateway: credentials rejected, using offline fallbacks", zap.Error(err))
		}
	}
	g.valid.Store(valid)
	return valid
}

// Call runs one inference request. It never returns an error: failures are
// reported through Result.Status and Result.Err.
func (g *Gateway) Call(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	route := g.cfg.Models[req.Task]
	model := req.Model
	if model == "" {
		model = route.Primary
	}
	res = Result{Requested: model, Model: model, Task: req.Task}
	defer func() { res.Latency = time.Since(start) }()

	if !g.Available() {
		return g.offline(res, req.Input, StatusMock, ErrRemoteDisabled)
	}
	if err := ctx.Err(); err != nil {
		return g.offline(res, req.Input, StatusMock, err)
	}

	input, shrinks := g.preflight(req.Prompt, req.Input)
	res.Shrunk = shrinks > 0

	breaker := g.breakers.Get(model)
	var lastErr error
	for attempt := 1; ; attempt++ {
		if !g.Available() {
			return g.offline(res, req.Input, StatusMock, ErrRemoteDisabled)
		}

		var decision resilience.Decision
		if err := breaker.Allow(); err != nil {
			lastErr = err
			decision = resilience.RetryFallback
		} else {
			payload, err := g.invoke(ctx, model, req.Task, req.Prompt+input, req.Params)
			breaker.Record(err)
			res.Attempts++
			if err == nil {
				res.Payload = payload
				res.Status = StatusOK
				if res.Shrunk {
					res.Status = StatusDegraded
				}
				return res
			}
			lastErr = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				return g.offline(res, req.Input, StatusMock, ctxErr)
			}
			decision = g.cfg.Policy.Decide(resilience.KindOf(err), attempt)
			zap.L().Debug("gateway: attempt failed",
				zap.String("model", model),
				zap.String("task", string(req.Task)),
				zap.Int("attempt", attempt),
				zap.String("kind", resilience.KindOf(err).String()),
				zap.String("decision", decision.String()),
				zap.Error(err),
			)
		}

		switch decision {
		case resilience.RetrySame:
			if err := g.cfg.Policy.Wait(ctx, attempt, lastErr); err != nil {
				return g.offline(res, req.Input, StatusMock, err)
			}
		case resilience.RetryShrunk:
			shrinks++
			input = shrinkInput(input, shrinks)
			res.Shrunk = true
		case resilience.RetryFallback:
			return g.callFallback(ctx, res, route, req, input, lastErr)
		default:
			return g.giveUp(res, req.Input, lastErr)
		}
	}
}

func (g *Gateway) preflight(prompt, input string) (string, int) {
	if g.cfg.MaxInputTokens <= 0 {
		return input, 0
	}
	shrinks := 0
	maxShrinks := g.cfg.Policy.MaxAttempts - 1
	for chunk.EstimateTokens(prompt+input) > g.cfg.MaxInputTokens && shrinks < maxShrinks {
		shrinks++
		input = shrinkInput(input, shrinks)
	}
	return input, shrinks
}

func (g *Gateway) callFallback(ctx context.Context, res Result, route Route, req Request, input string, cause error) Result {
	fallback := route.Fallback
	if fallback == "" || fallback == res.Model {
		return g.offline(res, req.Input, StatusMock, cause)
	}

	breaker := g.breakers.Get(fallback)
	if err := breaker.Allow(); err != nil {
		return g.offline(res, req.Input, StatusMock, err)
	}

	payload, err := g.invoke(ctx, fallback, req.Task, req.Prompt+input, req.Params)
	breaker.Record(err)
	res.Attempts++
	if err != nil {
		zap.L().Warn("gateway: fallback model failed",
			zap.String("model", fallback),
			zap.String("task", string(req.Task)),
			zap.Error(err),
		)
		return g.giveUp(res, req.Input, err)
	}

	res.Model = fallback
	res.Payload = payload
	res.Status = StatusDegraded
	return res
}

func (g *Gateway) giveUp(res Result, input string, err error) Result {
	switch resilience.KindOf(err) {
	case resilience.KindAuth:
		g.valid.Store(false)
		zap.L().Warn("gateway: credentials rejected, disabling remote calls",
			zap.String("model", res.Model), zap.Error(err))
		return g.offline(res, input, StatusMock, err)
	case resilience.KindRateLimited:
		zap.L().Warn("gateway: rate limited", zap.String("model", res.Model), zap.Error(err))
		return g.offline(res, input, StatusDegraded, err)
	default:
		return g.offline(res, input, StatusMock, err)
	}
}

func (g *Gateway) invoke(ctx context.Context, model string, task Task, input string, params Params) (Payload, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Payload{}, err
	}

	callCtx := ctx
	if g.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()
	}

	payload, err := g.backend.Infer(callCtx, model, task, input, params)
	if err != nil {
		return Payload{}, err
	}
	if err := payload.validate(task); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func (g *Gateway) offline(res Result, input string, status CallStatus, err error) Result {
	res.Payload = MockPayload(res.Task, input)
	res.Status = status
	res.Err = err
	return res
}

// ErrRemoteDisabled is set on results served offline because credentials
// were missing or rejected.
var ErrRemoteDisabled = resilience.NewError(resilience.KindAuth, eris.New("gateway: remote inference disabled"))
