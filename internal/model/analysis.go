// Package model defines the data types shared across the analysis pipeline.
package model

// Status is the overall outcome of an analysis.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// StatusFromErrors derives the analysis status from the per-component error
// map: success when no component failed, error when all components failed,
// partial otherwise.
func StatusFromErrors(componentErrors map[string]string, components int) Status {
	switch {
	case len(componentErrors) == 0:
		return StatusSuccess
	case len(componentErrors) >= components:
		return StatusError
	default:
		return StatusPartial
	}
}

// Method records whether a component used remote models or its heuristic.
type Method string

const (
	MethodAPI      Method = "api"
	MethodFallback Method = "fallback"
)

// Chunk is a span of the source text sized for one model call. Start and End
// are byte offsets into the source; Text == source[Start:End].
type Chunk struct {
	Index  int    `json:"index"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Text   string `json:"-"`
	Tokens int    `json:"tokens"`
}

// AnalysisRequest is the input to a full document analysis.
type AnalysisRequest struct {
	Text        string            `json:"text"`
	Source      string            `json:"source,omitempty"`
	MetricsHint map[string]string `json:"metrics_hint,omitempty"`
}

// Insights is the synthesized narrative layer of an analysis.
type Insights struct {
	KeyPoints       []string `json:"key_points"`
	Trends          []string `json:"trends"`
	Recommendations []string `json:"recommendations"`
}

// AnalysisResult is the full output of one analysis.
type AnalysisResult struct {
	Status           Status            `json:"status"`
	Metrics          []FinancialMetric `json:"metrics"`
	KPIs             []KPI             `json:"kpis"`
	Risk             RiskAssessment    `json:"risk"`
	Sentiment        SentimentResult   `json:"sentiment"`
	Entities         EntityBag         `json:"entities"`
	ExecutiveSummary Summary           `json:"executive_summary"`
	BusinessOutlook  Summary           `json:"business_outlook"`
	Insights         Insights          `json:"insights"`
	ComponentErrors  map[string]string `json:"component_errors"`
	ChunkCount       int               `json:"chunk_count"`
	SkippedChunks    int               `json:"skipped_chunks"`
	ElapsedMS        int64             `json:"elapsed_ms"`
	ModelUsed        string            `json:"model_used"`
}
