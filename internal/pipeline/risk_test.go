package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/matna449/annual-report-analyzer/internal/gateway"
	"github.com/matna449/annual-report-analyzer/internal/model"
	"github.com/matna449/annual-report-analyzer/internal/resilience"
)

const riskSectionDoc = `Item 1A. Risk Factors

• Intense competition could reduce our market share significantly.
• Changes in interest rates may adversely affect our borrowing costs.

Item 1B. Unresolved Staff Comments
None of the staff comments raise a material risk to our business.`

func TestHeuristicRisks_SentenceScan(t *testing.T) {
	risks := HeuristicRisks(scenarioText)

	require.NotEmpty(t, risks)
	found := false
	for _, r := range risks {
		if strings.Contains(r, "regulatory") {
			found = true
		}
	}
	assert.True(t, found, "expected a factor mentioning regulatory risk, got %v", risks)
}

func TestHeuristicRisks_Section(t *testing.T) {
	risks := HeuristicRisks(riskSectionDoc)

	assert.Equal(t, []string{
		"Intense competition could reduce our market share significantly.",
		"Changes in interest rates may adversely affect our borrowing costs.",
	}, risks)
}

func TestHeuristicRisks_SkipsTableOfContents(t *testing.T) {
	doc := "Contents\nItem 1A. Risk Factors 12\nItem 1B. Unresolved Staff Comments 20\n\n" + riskSectionDoc

	risks := HeuristicRisks(doc)

	require.Len(t, risks, 2)
	assert.Contains(t, risks[0], "Intense competition")
}

func TestHeuristicRisks_NoRiskLanguage(t *testing.T) {
	assert.Empty(t, HeuristicRisks("The company held its annual meeting. Shareholders attended."))
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		factor string
		want   float64
	}{
		{"significant regulatory risk", 0.9},
		{"a critical supplier with minor exposure", 1.0},
		{"a highly unlikely outcome", 0.1},
		{"moderate currency exposure", 0.6},
		{"exposure to interest rates", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.factor, func(t *testing.T) {
			assert.InDelta(t, tt.want, Severity(tt.factor), 1e-9)
		})
	}
}

func TestCategorizeRisk(t *testing.T) {
	tests := []struct {
		factor string
		want   model.RiskCategory
	}{
		{"Pending litigation and regulatory review", model.RiskLitigation},
		{"New regulations on data privacy", model.RiskRegulation},
		{"Competitors may launch cheaper products", model.RiskCompetition},
		{"A recession would reduce consumer spending", model.RiskMarket},
		{"Our debt covenants restrict dividends", model.RiskCredit},
		{"A cyber attack could disrupt our systems", model.RiskOperational},
		{"Severe weather events", model.RiskOther},
	}
	for _, tt := range tests {
		t.Run(tt.factor, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeRisk(tt.factor))
		})
	}
}

func TestScoreRisks(t *testing.T) {
	a := ScoreRisks([]string{
		"Minor competition from new entrants",
		"Critical litigation over patents",
		"Significant regulatory changes",
		"Critical litigation over patents.",
	}, 2)

	assert.GreaterOrEqual(t, a.Score, 0.0)
	assert.LessOrEqual(t, a.Score, 1.0)
	assert.InDelta(t, (0.3+1.0+0.9+1.0)/8, a.Score, 1e-9)

	var sum float64
	for _, w := range a.Distribution {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	require.Len(t, a.Primary, 2)
	assert.Equal(t, "Critical litigation over patents", a.Primary[0].Text)
	assert.Equal(t, model.RiskRegulation, a.Primary[1].Category)
	assert.Len(t, a.Factors, 4)
}

func TestScoreRisks_Empty(t *testing.T) {
	a := ScoreRisks(nil, 5)

	assert.Zero(t, a.Score)
	assert.NotNil(t, a.Distribution)
	assert.Empty(t, a.Factors)
	assert.Empty(t, a.Primary)
}

func TestRiskAnalyzer_ModelPath(t *testing.T) {
	gw := newMockInferencer(true)
	gw.On("Call", mock.Anything, mock.MatchedBy(func(r gateway.Request) bool {
		return r.Task == gateway.TaskGeneration && r.Prompt == RiskPrompt && strings.Contains(r.Input, "suppliers")
	})).Return(liveResult("flan", gateway.TaskGeneration, gateway.Payload{
		Text: "1. Supply chain disruption\n2. Rising interest rates\n- Currency fluctuations\n\n",
	})).Once()

	text, chunks := chunksOf("Our operations depend on suppliers.")
	a := NewRiskAnalyzer(gw, 4000, 256, 20, 5).Analyze(context.Background(), text, chunks)

	assert.Equal(t, model.MethodAPI, a.Method)
	require.Len(t, a.Factors, 3)
	assert.Equal(t, "Supply chain disruption", a.Factors[0].Text)
	assert.Equal(t, model.RiskOperational, a.Factors[0].Category)
	assert.Equal(t, "Currency fluctuations", a.Factors[2].Text)
	gw.AssertExpectations(t)
}

func TestRiskAnalyzer_FailedModelUsesHeuristics(t *testing.T) {
	gw := newMockInferencer(true)
	gw.On("Call", mock.Anything, taskIs(gateway.TaskGeneration)).
		Return(mockResult(gateway.TaskGeneration, resilience.KindUnavailable))

	text, chunks := chunksOf(scenarioText)
	a := NewRiskAnalyzer(gw, 4000, 256, 20, 5).Analyze(context.Background(), text, chunks)

	assert.Equal(t, model.MethodFallback, a.Method)
	require.NotEmpty(t, a.Factors)
	assert.Equal(t, model.RiskRegulation, a.Factors[0].Category)
	assert.InDelta(t, 0.45, a.Score, 1e-9)
}

func TestRiskAnalyzer_CapsFactors(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("There is a risk that factor number ")
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString(" occurs. ")
	}
	a := NewRiskAnalyzer(nil, 4000, 256, 20, 5).Analyze(context.Background(), b.String(), nil)

	assert.Len(t, a.Factors, 20)
	assert.Len(t, a.Primary, 5)
}

func TestRiskSample(t *testing.T) {
	_, chunks := chunksOf("first", "second", "third", "fourth", "fifth")
	assert.Equal(t, "first\n...\nthird\n...\nfifth", riskSample(chunks, 4000))

	_, few := chunksOf("a", "b")
	assert.Equal(t, "a\nb", riskSample(few, 4000))

	assert.Equal(t, "fir", riskSample(chunks, 3))
}
