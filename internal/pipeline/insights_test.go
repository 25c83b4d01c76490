package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/matna449/annual-report-analyzer/internal/model"
)

func countPrefix(items []string, prefix string) int {
	n := 0
	for _, s := range items {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func TestSynthesizeInsights_EmptyInput(t *testing.T) {
	var out model.Insights
	assert.NotPanics(t, func() { out = SynthesizeInsights(InsightInput{}) })

	assert.NotNil(t, out.KeyPoints)
	assert.Len(t, out.Trends, 2)
	assert.Len(t, out.Recommendations, 3)
}

func TestSynthesizeInsights_Rules(t *testing.T) {
	in := InsightInput{
		Metrics: []model.FinancialMetric{
			billions("Net Income", 2.3),
			{Name: "Revenue", RawValue: "$10.5 billion", Value: ptr(10.5), Unit: model.UnitBillion},
		},
		Sentiment: model.SentimentResult{
			Label:       model.SentimentPositive,
			Explanation: "The text contains predominantly positive financial language (high confidence, 0.90).",
		},
		Risk: model.RiskAssessment{Primary: []model.RiskFactor{
			{Text: "Risk one"}, {Text: "Risk two"}, {Text: "Risk three"}, {Text: "Risk four"},
		}},
		Entities: model.EntityBag{Organizations: []string{"Acme", "Globex", "Initech", "Hooli"}},
	}

	out := SynthesizeInsights(in)

	assert.Equal(t, "Reported Revenue of $10.5 billion.", out.KeyPoints[0])
	assert.Contains(t, out.KeyPoints, "The report conveys a positive financial tone.")
	assert.Contains(t, out.KeyPoints, in.Sentiment.Explanation)
	assert.Equal(t, 3, countPrefix(out.KeyPoints, "Risk factor identified: "))
	assert.Equal(t, 3, countPrefix(out.KeyPoints, "Organization mentioned: "))
	assert.NotEmpty(t, out.Trends)
	assert.NotEmpty(t, out.Recommendations)
}

func TestSynthesizeInsights_KPIRecommendations(t *testing.T) {
	out := SynthesizeInsights(InsightInput{
		KPIs: []model.KPI{
			{Name: KPICurrentRatio, Value: 0.8, Band: "concerning"},
			{Name: KPIDebtToEquity, Value: 2.5, Band: "highly leveraged"},
		},
		Risk:      model.RiskAssessment{Score: 0.8},
		Sentiment: model.SentimentResult{Label: model.SentimentNegative},
	})

	assert.Len(t, out.Trends, 2)
	assert.Contains(t, out.Recommendations, "Monitor short-term liquidity and working capital.")
	assert.Contains(t, out.Recommendations, "Review debt levels and refinancing exposure.")
	assert.Len(t, out.Recommendations, 4)
}

func TestSynthesizeInsights_GrowthTrend(t *testing.T) {
	out := SynthesizeInsights(InsightInput{Metrics: []model.FinancialMetric{
		{Name: "Revenue Growth", RawValue: "12%", Value: ptr(12), Unit: model.UnitPercent, Category: model.CategoryGrowth},
	}})

	assert.Equal(t, []string{"Revenue grew by 12%."}, out.Trends)
}

func TestSynthesizeInsights_DeclineTrend(t *testing.T) {
	metrics := ExtractMetrics("Revenue declined by 12% compared with the prior year.")
	out := SynthesizeInsights(InsightInput{Metrics: metrics})

	assert.Contains(t, out.Trends, "Revenue declined by 12%.")
	assert.NotContains(t, out.Trends, "Revenue grew by 12%.")
}

func TestFallbackInsights(t *testing.T) {
	a := FallbackInsights()
	a.Trends[0] = "changed"

	b := FallbackInsights()
	assert.NotEqual(t, "changed", b.Trends[0])
	assert.Len(t, b.Recommendations, 3)
	assert.Len(t, b.KeyPoints, 1)
}

func ptr(v float64) *float64 { return &v }
