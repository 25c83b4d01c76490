package pipeline

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/matna449/annual-report-analyzer/internal/model"
)

// KPI names.
const (
	KPINetMargin     = "Net Profit Margin"
	KPIReturnAssets  = "Return on Assets"
	KPIReturnEquity  = "Return on Equity"
	KPIDebtToEquity  = "Debt to Equity"
	KPICurrentRatio  = "Current Ratio"
	KPIAssetTurnover = "Asset Turnover"
)

var hundred = decimal.NewFromInt(100)

// ComputeKPIs derives financial ratios from extracted metrics. A ratio is
// only computed when both inputs are present and the divisor is non-zero.
func ComputeKPIs(metrics []model.FinancialMetric) []model.KPI {
	values := map[string]decimal.Decimal{}
	for _, m := range metrics {
		if m.Unit == model.UnitPercent {
			continue
		}
		v, ok := m.Scaled()
		if !ok {
			continue
		}
		values[strings.ToLower(m.Name)] = decimal.NewFromFloat(v)
	}

	get := func(name string) (decimal.Decimal, bool) {
		v, ok := values[strings.ToLower(name)]
		return v, ok
	}

	out := []model.KPI{}
	ratio := func(name, num, den string, pct bool, band func(float64) string) {
		n, ok := get(num)
		if !ok {
			return
		}
		d, ok := get(den)
		if !ok || d.IsZero() {
			return
		}
		r := n.DivRound(d, 6)
		unit := model.UnitNone
		if pct {
			r = r.Mul(hundred)
			unit = model.UnitPercent
		}
		v := r.Round(2).InexactFloat64()
		k := model.KPI{Name: name, Value: v, Unit: unit}
		if band != nil {
			k.Band = band(v)
		}
		out = append(out, k)
	}

	ratio(KPINetMargin, "Net Income", "Revenue", true, ProfitabilityBand)
	ratio(KPIReturnAssets, "Net Income", "Total Assets", true, nil)
	ratio(KPIReturnEquity, "Net Income", "Shareholders' Equity", true, nil)
	ratio(KPIDebtToEquity, "Total Liabilities", "Shareholders' Equity", false, LeverageBand)
	ratio(KPICurrentRatio, "Current Assets", "Current Liabilities", false, LiquidityBand)
	ratio(KPIAssetTurnover, "Revenue", "Total Assets", false, nil)

	return out
}

// LiquidityBand grades a current ratio.
func LiquidityBand(currentRatio float64) string {
	switch {
	case currentRatio > 2:
		return "strong"
	case currentRatio > 1:
		return "adequate"
	default:
		return "concerning"
	}
}

// ProfitabilityBand grades a net margin in percent.
func ProfitabilityBand(netMargin float64) string {
	switch {
	case netMargin > 20:
		return "excellent"
	case netMargin > 10:
		return "good"
	case netMargin > 5:
		return "average"
	default:
		return "below average"
	}
}

// LeverageBand grades a debt-to-equity ratio.
func LeverageBand(debtToEquity float64) string {
	switch {
	case debtToEquity > 2:
		return "highly leveraged"
	case debtToEquity > 1:
		return "moderately leveraged"
	default:
		return "conservatively financed"
	}
}
