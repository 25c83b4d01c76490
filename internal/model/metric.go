package model

// Unit is the normalized unit of a metric value.
type Unit string

const (
	UnitNone     Unit = ""
	UnitThousand Unit = "thousand"
	UnitMillion  Unit = "million"
	UnitBillion  Unit = "billion"
	UnitPercent  Unit = "percent"
)

// Scale returns the multiplier the unit applies to a value.
func (u Unit) Scale() float64 {
	switch u {
	case UnitThousand:
		return 1e3
	case UnitMillion:
		return 1e6
	case UnitBillion:
		return 1e9
	default:
		return 1
	}
}

// Category is the fixed metric taxonomy.
type Category string

const (
	CategoryIncomeStatement   Category = "income-statement"
	CategoryBalanceSheet      Category = "balance-sheet"
	CategoryCashFlow          Category = "cash-flow"
	CategoryProfitability     Category = "profitability"
	CategoryGrowth            Category = "growth"
	CategoryShareholderReturn Category = "shareholder-returns"
	CategoryValuation         Category = "valuation"
	CategoryOther             Category = "other"
)

// Reliability flags for metrics.
const (
	ReliabilityNormal  = "normal"
	ReliabilityFlagged = "flagged"
)

// FinancialMetric is one figure extracted from the text.
type FinancialMetric struct {
	Name             string    `json:"name"`
	RawValue         string    `json:"raw_value"`
	Value            *float64  `json:"value,omitempty"`
	Unit             Unit      `json:"unit,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	Category         Category  `json:"category"`
	Context          string    `json:"context,omitempty"`
	Offset           int       `json:"offset"`
	ContextSentiment Sentiment `json:"context_sentiment,omitempty"`
	Reliability      string    `json:"reliability,omitempty"`
}

// Scaled returns the value multiplied by its unit scale, or false when the
// metric has no numeric value.
func (m FinancialMetric) Scaled() (float64, bool) {
	if m.Value == nil {
		return 0, false
	}
	return *m.Value * m.Unit.Scale(), true
}

// KPI is a ratio derived from extracted metrics.
type KPI struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit,omitempty"`
	Band  string  `json:"band,omitempty"`
}
