package gateway

import (
	"context"
	"strings"
)

// Backend runs one inference call. Implementations classify failures with
// resilience.Error so the gateway can apply its retry policy.
type Backend interface {
	Infer(ctx context.Context, model string, task Task, input string, params Params) (Payload, error)
}

// Prober is implemented by backends that can check their credentials.
type Prober interface {
	Probe(ctx context.Context) error
}

type prefixRoute struct {
	prefix  string
	backend Backend
}

// Router dispatches calls to a backend chosen by model id prefix.
type Router struct {
	fallback Backend
	routes   []prefixRoute
}

// NewRouter returns a router that sends unmatched models to def.
func NewRouter(def Backend) *Router {
	return &Router{fallback: def}
}

// Handle routes models starting with prefix to b.
func (r *Router) Handle(prefix string, b Backend) *Router {
	r.routes = append(r.routes, prefixRoute{prefix: prefix, backend: b})
	return r
}

func (r *Router) pick(model string) Backend {
	for _, rt := range r.routes {
		if strings.HasPrefix(model, rt.prefix) {
			return rt.backend
		}
	}
	return r.fallback
}

// Infer implements Backend.
func (r *Router) Infer(ctx context.Context, model string, task Task, input string, params Params) (Payload, error) {
	return r.pick(model).Infer(ctx, model, task, input, params)
}

// Probe checks every routed backend and returns the first failure.
func (r *Router) Probe(ctx context.Context) error {
	backends := []Backend{r.fallback}
	for _, rt := range r.routes {
		backends = append(backends, rt.backend)
	}
	for _, b := range backends {
		p, ok := b.(Prober)
		if !ok {
			continue
		}
		if err := p.Probe(ctx); err != nil {
			return err
		}
	}
	return nil
}
