package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/config"
	"github.com/matna449/annual-report-analyzer/internal/gateway"
	"github.com/matna449/annual-report-analyzer/internal/pipeline"
	"github.com/matna449/annual-report-analyzer/internal/store"
	anthropicpkg "github.com/matna449/annual-report-analyzer/pkg/anthropic"
	"github.com/matna449/annual-report-analyzer/pkg/huggingface"
)

// claudePrefix routes model ids like "claude-haiku-4-5" to Anthropic.
const claudePrefix = "claude-"

// analysisEnv holds the gateway, analyzer and optional store needed by the
// analyze/serve commands.
type analysisEnv struct {
	Gateway  *gateway.Gateway
	Analyzer *pipeline.Analyzer
	Store    store.Store // nil unless requested
}

// Close releases resources held by the environment.
func (e *analysisEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// newBackend builds the inference backend from config. Hugging Face serves
// every task; tasks routed to a Claude model go through Anthropic when a key
// is configured. Returns nil when no credentials are set.
func newBackend(c *config.Config) gateway.Backend {
	if c.HuggingFace.Key == "" && c.Anthropic.Key == "" {
		return nil
	}

	hf := huggingface.NewClient(c.HuggingFace.Key, huggingface.WithBaseURL(c.HuggingFace.BaseURL))
	probeModel := ""
	if r, ok := c.Gateway.Models[string(gateway.TaskSentiment)]; ok {
		probeModel = r.Primary
	}
	router := gateway.NewRouter(gateway.NewHuggingFaceBackend(hf, c.HuggingFace.Key, probeModel))

	if c.Anthropic.Key != "" && usesClaude(c) {
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		router.Handle(claudePrefix, gateway.NewClaudeBackend(client, c.Anthropic.Key, c.Anthropic.Model))
		zap.L().Info("anthropic backend enabled", zap.String("model", c.Anthropic.Model))
	}
	return router
}

func usesClaude(c *config.Config) bool {
	for _, r := range c.Gateway.Models {
		if strings.HasPrefix(r.Primary, claudePrefix) || strings.HasPrefix(r.Fallback, claudePrefix) {
			return true
		}
	}
	return false
}

// initGateway builds the gateway and runs the credential probe once.
func initGateway(ctx context.Context) *gateway.Gateway {
	gw := gateway.New(ctx, newBackend(cfg), gateway.ConfigFrom(cfg))
	zap.L().Info("inference gateway ready", zap.Bool("remote", gw.Available()))
	return gw
}

// initAnalysis validates config and builds the analysis environment. When
// withStore is set the configured store is opened and migrated.
func initAnalysis(ctx context.Context, mode string, withStore bool) (*analysisEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &analysisEnv{}
	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	env.Gateway = initGateway(ctx)
	env.Analyzer = pipeline.NewAnalyzer(cfg.Analysis, env.Gateway)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}
