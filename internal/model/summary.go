package model

// SummaryKind selects executive or outlook summarization.
type SummaryKind string

const (
	SummaryExecutive SummaryKind = "executive"
	SummaryOutlook   SummaryKind = "outlook"
)

// Summary is a generated or extracted summary.
type Summary struct {
	Kind         SummaryKind `json:"kind"`
	Text         string      `json:"text"`
	Method       Method      `json:"method"`
	ChunksUsed   int         `json:"chunks_used"`
	ChunksFailed int         `json:"chunks_failed"`
}
