package model

// RiskCategory buckets risk factors.
type RiskCategory string

const (
	RiskLitigation  RiskCategory = "litigation"
	RiskRegulation  RiskCategory = "regulation"
	RiskCompetition RiskCategory = "competition"
	RiskMarket      RiskCategory = "market"
	RiskCredit      RiskCategory = "credit"
	RiskOperational RiskCategory = "operational"
	RiskOther       RiskCategory = "other"
)

// RiskFactor is one identified risk.
type RiskFactor struct {
	Text     string       `json:"text"`
	Category RiskCategory `json:"category"`
	Severity float64      `json:"severity"`
}

// RiskAssessment is the document-level risk picture.
type RiskAssessment struct {
	Score        float64                  `json:"score"`
	Distribution map[RiskCategory]float64 `json:"distribution"`
	Factors      []RiskFactor             `json:"factors"`
	Primary      []RiskFactor             `json:"primary"`
	Method       Method                   `json:"method"`
}
