package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/chunk"
	"github.com/matna449/annual-report-analyzer/internal/config"
	"github.com/matna449/annual-report-analyzer/internal/gateway"
	"github.com/matna449/annual-report-analyzer/internal/model"
)

// Component keys used in AnalysisResult.ComponentErrors.
const (
	ComponentMetrics   = "metrics"
	ComponentExecutive = "executive_summary"
	ComponentOutlook   = "business_outlook"
	ComponentSentiment = "sentiment"
	ComponentEntities  = "entities"
	ComponentRisks     = "risks"
	ComponentInsights  = "insights"
)

// Components lists every wrapped step in execution order.
var Components = []string{
	ComponentMetrics,
	ComponentExecutive,
	ComponentOutlook,
	ComponentSentiment,
	ComponentEntities,
	ComponentRisks,
	ComponentInsights,
}

// FallbackModelTag is reported when no remote model produced a used result.
const FallbackModelTag = "fallback methods"

// ErrInputTooShort is recorded for every component when the input text is
// empty or below the configured minimum.
var ErrInputTooShort = eris.New("pipeline: input text is empty or too short")

// Analyzer runs the full document analysis.
type Analyzer struct {
	cfg config.AnalysisConfig
	gw  Inferencer
}

// NewAnalyzer creates an analyzer over a gateway. A nil gateway runs every
// component on its heuristic path.
func NewAnalyzer(cfg config.AnalysisConfig, gw Inferencer) *Analyzer {
	return &Analyzer{cfg: cfg, gw: gw}
}

// Analyze produces a complete result for one document. It never returns nil
// and never panics; component failures are recorded in ComponentErrors and
// replaced with neutral defaults.
func (a *Analyzer) Analyze(ctx context.Context, req model.AnalysisRequest) *model.AnalysisResult {
	start := time.Now()
	log := zap.L().With(zap.String("source", req.Source))

	result := emptyResult()
	defer func() {
		result.ElapsedMS = time.Since(start).Milliseconds()
	}()

	if len(strings.TrimSpace(req.Text)) < max(a.cfg.MinTextChars, 1) {
		for _, c := range Components {
			result.ComponentErrors[c] = ErrInputTooShort.Error()
		}
		result.Status = model.StatusError
		log.Warn("pipeline: input rejected", zap.Int("chars", len(req.Text)))
		return result
	}

	if d := a.cfg.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	text := req.Text
	chunks := chunk.Split(text, chunk.Options{
		SizeChars:    a.cfg.ChunkSizeChars,
		OverlapChars: a.cfg.OverlapChars,
		MaxTokens:    a.cfg.MaxInputTokens,
	})
	result.ChunkCount = len(chunks)
	log.Info("pipeline: starting analysis", zap.Int("chars", len(text)), zap.Int("chunks", len(chunks)))

	var gw Inferencer
	rec := &recorder{}
	if a.gw != nil {
		rec.Inferencer = a.gw
		gw = rec
	}

	step := func(name string, fn func() error, fallback func()) {
		stepStart := time.Now()
		err := runStep(name, fn)
		duration := time.Since(stepStart).Milliseconds()
		if err != nil {
			result.ComponentErrors[name] = err.Error()
			fallback()
			log.Error("pipeline: component failed",
				zap.String("component", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return
		}
		log.Info("pipeline: component complete",
			zap.String("component", name),
			zap.Int64("duration_ms", duration),
		)
	}

	step(ComponentMetrics, func() error {
		result.Metrics = ExtractMetrics(text)
		result.KPIs = ComputeKPIs(result.Metrics)
		return nil
	}, func() {
		result.Metrics = []model.FinancialMetric{}
		result.KPIs = []model.KPI{}
	})

	summarizer := NewSummarizer(gw, a.cfg.SummaryChunks, a.cfg.MaxChunkRetries, a.cfg.Workers, a.cfg.MaxOutputTokens)
	step(ComponentExecutive, func() error {
		result.ExecutiveSummary = summarizer.Summarize(ctx, model.SummaryExecutive, text, chunks, req.MetricsHint)
		return nil
	}, func() {
		result.ExecutiveSummary = model.Summary{Kind: model.SummaryExecutive, Method: model.MethodFallback}
	})

	step(ComponentOutlook, func() error {
		result.BusinessOutlook = summarizer.Summarize(ctx, model.SummaryOutlook, text, chunks, nil)
		return nil
	}, func() {
		result.BusinessOutlook = model.Summary{Kind: model.SummaryOutlook, Method: model.MethodFallback}
	})

	step(ComponentSentiment, func() error {
		result.Sentiment = NewSentimentAnalyzer(gw, a.cfg.SentimentChunks, a.cfg.Workers).Analyze(ctx, text, chunks)
		result.Metrics = AnnotateReliability(result.Metrics, result.Sentiment)
		return nil
	}, func() {
		result.Sentiment = NeutralSentiment("Sentiment analysis failed")
	})

	step(ComponentEntities, func() error {
		result.Entities = NewEntityExtractor(gw, a.cfg.EntityChunks, a.cfg.Workers, a.cfg.EntityCap).Extract(ctx, text, chunks)
		return nil
	}, func() {
		result.Entities = emptyEntities()
	})

	step(ComponentRisks, func() error {
		result.Risk = NewRiskAnalyzer(gw, a.cfg.RiskSampleChars, a.cfg.MaxOutputTokens, a.cfg.MaxRiskFactors, a.cfg.PrimaryRisks).
			Analyze(ctx, text, chunks)
		return nil
	}, func() {
		result.Risk = emptyRisk()
	})

	step(ComponentInsights, func() error {
		result.Insights = SynthesizeInsights(InsightInput{
			Metrics:   result.Metrics,
			KPIs:      result.KPIs,
			Sentiment: result.Sentiment,
			Risk:      result.Risk,
			Entities:  result.Entities,
		})
		return nil
	}, func() {
		result.Insights = FallbackInsights()
	})

	result.SkippedChunks = result.Sentiment.ChunksSkipped +
		result.ExecutiveSummary.ChunksFailed +
		result.BusinessOutlook.ChunksFailed
	result.Status = model.StatusFromErrors(result.ComponentErrors, len(Components))
	result.ModelUsed = rec.tag()

	log.Info("pipeline: analysis complete",
		zap.String("status", string(result.Status)),
		zap.Int("component_errors", len(result.ComponentErrors)),
		zap.String("model_used", result.ModelUsed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result
}

// runStep calls fn, converting a panic into an error.
func runStep(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: %s panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		return eris.Wrapf(err, "pipeline: %s", name)
	}
	return nil
}

func emptyResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		Status:           model.StatusSuccess,
		Metrics:          []model.FinancialMetric{},
		KPIs:             []model.KPI{},
		Risk:             emptyRisk(),
		Sentiment:        NeutralSentiment(NoTextExplanation),
		Entities:         emptyEntities(),
		ExecutiveSummary: model.Summary{Kind: model.SummaryExecutive, Method: model.MethodFallback},
		BusinessOutlook:  model.Summary{Kind: model.SummaryOutlook, Method: model.MethodFallback},
		Insights:         model.Insights{KeyPoints: []string{}, Trends: []string{}, Recommendations: []string{}},
		ComponentErrors:  map[string]string{},
		ModelUsed:        FallbackModelTag,
	}
}

func emptyRisk() model.RiskAssessment {
	r := ScoreRisks(nil, 0)
	r.Method = model.MethodFallback
	return r
}

func emptyEntities() model.EntityBag {
	return model.EntityBag{
		Organizations: []string{},
		Locations:     []string{},
		People:        []string{},
		Method:        model.MethodFallback,
	}
}

// recorder remembers which models produced live results.
type recorder struct {
	Inferencer

	mu     sync.Mutex
	models map[string]bool
}

func (r *recorder) Call(ctx context.Context, req gateway.Request) gateway.Result {
	res := r.Inferencer.Call(ctx, req)
	if res.Live() && res.Model != "" {
		r.mu.Lock()
		if r.models == nil {
			r.models = map[string]bool{}
		}
		r.models[res.Model] = true
		r.mu.Unlock()
	}
	return res
}

func (r *recorder) tag() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.models) == 0 {
		return FallbackModelTag
	}
	names := make([]string, 0, len(r.models))
	for m := range r.models {
		names = append(names, m)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
