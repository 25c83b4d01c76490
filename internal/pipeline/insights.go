package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/model"
)

const (
	maxRiskPoints = 3
	maxOrgPoints  = 3
	highRiskScore = 0.6
)

var (
	defaultTrends = []string{
		"Review year-over-year changes in revenue and income to establish the trend.",
		"Compare the reported figures with industry peers for context.",
	}
	defaultRecommendations = []string{
		"Review the full financial statements for a complete picture.",
		"Compare performance against prior reporting periods.",
		"Consider the identified risk factors when evaluating the company.",
	}
)

// InsightInput is everything the synthesizer reads.
type InsightInput struct {
	Metrics   []model.FinancialMetric
	KPIs      []model.KPI
	Sentiment model.SentimentResult
	Risk      model.RiskAssessment
	Entities  model.EntityBag
}

// SynthesizeInsights turns component outputs into key points, trends and
// recommendations. It never panics; trends and recommendations are never
// empty.
func SynthesizeInsights(in InsightInput) (out model.Insights) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("insights: synthesis panicked", zap.Any("panic", r))
			out = FallbackInsights()
		}
	}()

	out = model.Insights{KeyPoints: []string{}, Trends: []string{}, Recommendations: []string{}}

	if m, ok := headlineMetric(in.Metrics); ok {
		out.KeyPoints = append(out.KeyPoints, fmt.Sprintf("Reported %s of %s.", m.Name, m.RawValue))
	}

	switch in.Sentiment.Label {
	case model.SentimentPositive:
		out.KeyPoints = append(out.KeyPoints, "The report conveys a positive financial tone.")
	case model.SentimentNegative:
		out.KeyPoints = append(out.KeyPoints, "The report conveys a cautious or negative financial tone.")
	case model.SentimentNeutral:
		out.KeyPoints = append(out.KeyPoints, "The report maintains a balanced, neutral tone.")
	}
	if in.Sentiment.Explanation != "" && in.Sentiment.Explanation != NoTextExplanation {
		out.KeyPoints = append(out.KeyPoints, in.Sentiment.Explanation)
	}

	risks := in.Risk.Primary
	if len(risks) == 0 {
		risks = in.Risk.Factors
	}
	for _, f := range risks[:min(maxRiskPoints, len(risks))] {
		out.KeyPoints = append(out.KeyPoints, "Risk factor identified: "+f.Text)
	}

	for _, org := range in.Entities.Organizations[:min(maxOrgPoints, len(in.Entities.Organizations))] {
		out.KeyPoints = append(out.KeyPoints, "Organization mentioned: "+org)
	}

	out.Trends = append(out.Trends, growthTrends(in.Metrics)...)
	for _, k := range in.KPIs {
		if t, r := kpiInsight(k); t != "" {
			out.Trends = append(out.Trends, t)
			if r != "" {
				out.Recommendations = append(out.Recommendations, r)
			}
		}
	}

	if in.Risk.Score > highRiskScore {
		out.Recommendations = append(out.Recommendations,
			fmt.Sprintf("Prioritize mitigation of the primary risk factors (risk score %.2f).", in.Risk.Score))
	}
	if in.Sentiment.Label == model.SentimentNegative {
		out.Recommendations = append(out.Recommendations,
			"Examine management commentary for the causes of the negative tone.")
	}

	if len(out.Trends) == 0 {
		out.Trends = append(out.Trends, defaultTrends...)
	}
	if len(out.Recommendations) == 0 {
		out.Recommendations = append(out.Recommendations, defaultRecommendations...)
	}
	return out
}

// FallbackInsights is returned when synthesis fails.
func FallbackInsights() model.Insights {
	return model.Insights{
		KeyPoints:       []string{"Analysis completed with limited insight generation."},
		Trends:          append([]string(nil), defaultTrends...),
		Recommendations: append([]string(nil), defaultRecommendations...),
	}
}

// headlineMetric returns the largest revenue or income figure.
func headlineMetric(metrics []model.FinancialMetric) (model.FinancialMetric, bool) {
	var (
		best  model.FinancialMetric
		value float64
		found bool
	)
	for _, m := range metrics {
		name := strings.ToLower(m.Name)
		if m.Unit == model.UnitPercent || !(strings.Contains(name, "revenue") || strings.Contains(name, "income")) {
			continue
		}
		v, ok := m.Scaled()
		if !ok {
			continue
		}
		if !found || v > value {
			best, value, found = m, v, true
		}
	}
	return best, found
}

func growthTrends(metrics []model.FinancialMetric) []string {
	var out []string
	for _, m := range metrics {
		if m.Category != model.CategoryGrowth || m.Value == nil {
			continue
		}
		direction := "grew"
		if *m.Value < 0 {
			direction = "declined"
		}
		out = append(out, fmt.Sprintf("%s %s by %s.", strings.TrimSuffix(m.Name, " Growth"), direction, m.RawValue))
	}
	return out
}

// kpiInsight returns the trend line for a KPI and, when its band warrants
// action, a recommendation.
func kpiInsight(k model.KPI) (string, string) {
	switch k.Name {
	case KPINetMargin:
		trend := fmt.Sprintf("Net profit margin of %.2f%% is %s.", k.Value, k.Band)
		if k.Band == "below average" {
			return trend, "Investigate the cost structure to improve profitability."
		}
		return trend, ""
	case KPICurrentRatio:
		trend := fmt.Sprintf("Liquidity is %s with a current ratio of %.2f.", k.Band, k.Value)
		if k.Band == "concerning" {
			return trend, "Monitor short-term liquidity and working capital."
		}
		return trend, ""
	case KPIDebtToEquity:
		trend := fmt.Sprintf("The company is %s with a debt-to-equity ratio of %.2f.", k.Band, k.Value)
		if k.Band == "highly leveraged" {
			return trend, "Review debt levels and refinancing exposure."
		}
		return trend, ""
	case KPIReturnEquity:
		return fmt.Sprintf("Return on equity stands at %.2f%%.", k.Value), ""
	default:
		return "", ""
	}
}
