package pipeline

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/matna449/annual-report-analyzer/internal/model"
)

// valueExpr captures an optional currency, a number and an optional unit.
// Groups: currency, number, scale word, percent.
const valueExpr = `([$€£¥]|usd|eur|gbp)?\s?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(?:\s*(billion|million|thousand|bn|mn|mm|m|b|k)\b|\s*(%|percent\b))?`

// filler is the short, digit-free stretch allowed between a label and its value.
const filler = `[^\n\d$€£¥.;]{0,40}?`

// valueKind restricts which values a family accepts.
type valueKind int

const (
	// kindAmount needs a currency, a scale word or a grouped number.
	kindAmount valueKind = iota
	kindPercent
	// kindAny accepts bare numbers (per-share figures, ratios) but not
	// percentages.
	kindAny
)

// metricFamily is one named pattern in the extraction table.
type metricFamily struct {
	name        string
	rawCategory string
	label       string
	kind        valueKind
}

// Order matters: per-share and ratio families come before the generic
// income families that share their words, growth before revenue, margins
// before profit.
var metricFamilies = []metricFamily{
	{"EPS", "Per Share", `(?:diluted |basic )?(?:earnings|income) per (?:diluted |basic )?(?:common )?share|(?:diluted |basic )?eps`, kindAny},
	{"Dividend Per Share", "Shareholder Returns", `dividends? (?:declared |paid )?per (?:common )?share`, kindAny},
	{"Revenue Growth", "Growth", `(?:revenues?|net sales|sales) (?:growth|grew|increased|rose|declined|decreased|fell)(?: by)?`, kindPercent},
	{"Earnings Growth", "Growth", `(?:earnings|net income|profits?) (?:growth|grew|increased|rose|declined|decreased|fell)(?: by)?`, kindPercent},
	{"Gross Margin", "Margins", `gross (?:profit )?margins?`, kindPercent},
	{"Operating Margin", "Margins", `operating (?:profit )?margins?`, kindPercent},
	{"Net Margin", "Margins", `net (?:profit |income )?margins?|profit margins?`, kindPercent},
	{"Return on Equity", "Returns", `return on (?:average )?(?:shareholders['’]? |stockholders['’]? )?equity|roe`, kindPercent},
	{"Return on Assets", "Returns", `return on (?:average )?(?:total )?assets|roa`, kindPercent},
	{"Operating Cash Flow", "Cash Flow", `(?:net )?cash (?:provided by|generated from|from) operating activities|operating cash flows?`, kindAmount},
	{"Free Cash Flow", "Cash Flow", `free cash flows?`, kindAmount},
	{"Capital Expenditures", "Cash Flow", `capital expenditures?|capex`, kindAmount},
	{"Net Income", "Income Statement", `net (?:income|earnings|profit)`, kindAmount},
	{"Operating Income", "Income Statement", `operating (?:income|profit)|income from operations`, kindAmount},
	{"Gross Profit", "Income Statement", `gross profit`, kindAmount},
	{"EBITDA", "Income Statement", `(?:adjusted )?ebitda`, kindAmount},
	{"Revenue", "Income Statement", `(?:total |net )?(?:revenues?|net sales|total sales|turnover)`, kindAmount},
	{"Total Assets", "Balance Sheet", `total assets`, kindAmount},
	{"Current Assets", "Balance Sheet", `(?:total )?current assets`, kindAmount},
	{"Total Liabilities", "Balance Sheet", `total liabilities`, kindAmount},
	{"Current Liabilities", "Balance Sheet", `(?:total )?current liabilities`, kindAmount},
	{"Shareholders' Equity", "Balance Sheet", `(?:total )?(?:shareholders|stockholders)['’]? equity|total equity`, kindAmount},
	{"Total Debt", "Balance Sheet", `(?:total|long-term) debt`, kindAmount},
	{"Cash and Equivalents", "Balance Sheet", `cash and (?:cash )?equivalents`, kindAmount},
	{"Dividends", "Shareholder Returns", `dividends? (?:paid|declared|of)`, kindAmount},
	{"Share Repurchases", "Shareholder Returns", `share (?:repurchases?|buybacks?)`, kindAmount},
	{"Market Capitalization", "Valuation", `market cap(?:italization)?`, kindAmount},
	{"P/E Ratio", "Valuation", `(?:price[- ]to[- ]earnings|p/e) ratio`, kindAny},
}

func (f metricFamily) accepts(m model.FinancialMetric) bool {
	switch f.kind {
	case kindPercent:
		return m.Unit == model.UnitPercent
	case kindAmount:
		return m.Unit != model.UnitPercent &&
			(m.Currency != "" || m.Unit != model.UnitNone || strings.Contains(m.RawValue, ","))
	default:
		return true
	}
}

type compiledFamily struct {
	metricFamily
	re *regexp.Regexp
}

var (
	compiledFamilies = compileFamilies(metricFamilies)

	// labelValueLine catches table-like "Label: value" lines.
	labelValueLine = regexp.MustCompile(`(?im)^[ \t]*([a-z][a-z &'’/()\-]{2,60}?)[ \t]*[:\-–][ \t]*` + valueExpr + `[ \t]*[.;]?[ \t]*$`)

	yearPattern = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	unitAfter   = regexp.MustCompile(`(?i)^\s*(?:billion|million|thousand|bn|mn|mm|m|b|k|%|percent)\b|^\s*%`)
	spaceRun    = regexp.MustCompile(`\s+`)

	// declineWords in a growth label turn the unsigned value negative.
	declineWords = regexp.MustCompile(`(?i)\b(?:declin(?:e|ed|es|ing)|decreas(?:e|ed|es|ing)|fell|fall(?:s|ing)?|dropped|contracted)\b`)
)

// minLabelLength and labelStopWords filter the label: value pattern.
const minLabelLength = 4

var labelStopWords = map[string]bool{
	"page": true, "note": true, "notes": true, "item": true, "table": true,
	"section": true, "year": true, "fiscal year": true, "date": true,
	"phone": true, "fax": true, "tel": true, "telephone": true, "exhibit": true,
	"part": true, "schedule": true, "figure": true, "chapter": true, "step": true,
	"age": true, "period": true, "quarter": true, "zip": true, "version": true,
}

func compileFamilies(fams []metricFamily) []compiledFamily {
	out := make([]compiledFamily, len(fams))
	for i, f := range fams {
		out[i] = compiledFamily{
			metricFamily: f,
			re:           regexp.MustCompile(`(?i)\b(?:` + f.label + `)\b` + filler + valueExpr),
		}
	}
	return out
}

type span struct{ start, end int }

type claims []span

func (c claims) overlaps(s span) bool {
	for _, x := range c {
		if s.start < x.end && x.start < s.end {
			return true
		}
	}
	return false
}

// ExtractMetrics finds financial figures in text. The result depends only on
// the text and is ordered by position.
func ExtractMetrics(text string) []model.FinancialMetric {
	if strings.TrimSpace(text) == "" {
		return []model.FinancialMetric{}
	}

	masked := maskYears(text)
	var (
		found   []model.FinancialMetric
		claimed claims
	)

	for _, fam := range compiledFamilies {
		for _, loc := range fam.re.FindAllStringSubmatchIndex(masked, -1) {
			s := span{loc[0], loc[1]}
			if claimed.overlaps(s) {
				continue
			}
			m, ok := metricFromMatch(text, loc, 2, fam.name, CategoryFor(fam.rawCategory))
			if !ok || !fam.accepts(m) {
				continue
			}
			claimed = append(claimed, s)
			found = append(found, m)
		}
	}

	title := cases.Title(language.English)
	for _, loc := range labelValueLine.FindAllStringSubmatchIndex(masked, -1) {
		s := span{loc[0], loc[1]}
		if claimed.overlaps(s) {
			continue
		}
		label := strings.TrimSpace(spaceRun.ReplaceAllString(text[loc[2]:loc[3]], " "))
		if len(label) < minLabelLength || labelStopWords[strings.ToLower(label)] {
			continue
		}
		m, ok := metricFromMatch(text, loc, 4, title.String(label), categoryForLabel(label))
		if !ok {
			continue
		}
		claimed = append(claimed, s)
		found = append(found, m)
	}

	return dedupeMetrics(found)
}

// metricFromMatch builds a metric from submatch indexes; group is the
// index of the currency group in loc (pairs of offsets).
func metricFromMatch(text string, loc []int, group int, name string, category model.Category) (model.FinancialMetric, bool) {
	sub := func(g int) string {
		i := group + 2*g
		if loc[i] < 0 {
			return ""
		}
		return text[loc[i]:loc[i+1]]
	}
	currency, number, scale, pct := sub(0), sub(1), sub(2), sub(3)

	d, err := decimal.NewFromString(strings.ReplaceAll(number, ",", ""))
	if err != nil {
		return model.FinancialMetric{}, false
	}
	if category == model.CategoryGrowth && declineWords.MatchString(text[loc[0]:loc[group+2]]) {
		d = d.Neg()
	}
	value := d.InexactFloat64()

	unit := normalizeUnit(scale)
	if pct != "" {
		unit = model.UnitPercent
	}

	valueStart := loc[group]
	if valueStart < 0 {
		valueStart = loc[group+2]
	}
	valueEnd := loc[group+3]
	for _, i := range []int{group + 5, group + 7} {
		if loc[i] > valueEnd {
			valueEnd = loc[i]
		}
	}
	raw := strings.TrimSpace(text[valueStart:valueEnd])

	return model.FinancialMetric{
		Name:     name,
		RawValue: raw,
		Value:    &value,
		Unit:     unit,
		Currency: normalizeCurrency(currency),
		Category: category,
		Context:  snippet(text, loc[0], loc[1], 50),
		Offset:   loc[0],
	}, true
}

func normalizeUnit(s string) model.Unit {
	switch strings.ToLower(s) {
	case "billion", "bn", "b":
		return model.UnitBillion
	case "million", "mn", "mm", "m":
		return model.UnitMillion
	case "thousand", "k":
		return model.UnitThousand
	default:
		return model.UnitNone
	}
}

func normalizeCurrency(s string) string {
	switch strings.ToLower(s) {
	case "$", "usd":
		return "USD"
	case "€", "eur":
		return "EUR"
	case "£", "gbp":
		return "GBP"
	case "¥":
		return "JPY"
	default:
		return ""
	}
}

// CategoryFor maps a raw category string onto the fixed taxonomy.
func CategoryFor(raw string) model.Category {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "income statement", "income", "earnings":
		return model.CategoryIncomeStatement
	case "balance sheet", "financial position":
		return model.CategoryBalanceSheet
	case "cash flow", "cash flows":
		return model.CategoryCashFlow
	case "margins", "returns", "profitability", "financial ratios":
		return model.CategoryProfitability
	case "growth":
		return model.CategoryGrowth
	case "per share", "shareholder returns", "dividends":
		return model.CategoryShareholderReturn
	case "valuation", "market":
		return model.CategoryValuation
	default:
		return model.CategoryOther
	}
}

// categoryForLabel guesses a category for a free-form table label.
func categoryForLabel(label string) model.Category {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "growth"):
		return model.CategoryGrowth
	case strings.Contains(l, "margin") || strings.Contains(l, "return on"):
		return model.CategoryProfitability
	case strings.Contains(l, "cash flow") || strings.Contains(l, "capital expenditure"):
		return model.CategoryCashFlow
	case strings.Contains(l, "dividend") || strings.Contains(l, "per share") || strings.Contains(l, "repurchase"):
		return model.CategoryShareholderReturn
	case strings.Contains(l, "market cap") || strings.Contains(l, "valuation") || strings.Contains(l, "p/e"):
		return model.CategoryValuation
	case strings.Contains(l, "asset") || strings.Contains(l, "liabilit") || strings.Contains(l, "equity") ||
		strings.Contains(l, "debt") || strings.Contains(l, "cash") || strings.Contains(l, "inventor"):
		return model.CategoryBalanceSheet
	case strings.Contains(l, "revenue") || strings.Contains(l, "sales") || strings.Contains(l, "income") ||
		strings.Contains(l, "expense") || strings.Contains(l, "cost") || strings.Contains(l, "profit") ||
		strings.Contains(l, "ebitda"):
		return model.CategoryIncomeStatement
	default:
		return model.CategoryOther
	}
}

// dedupeMetrics keeps one metric per name, preferring the larger scaled value.
func dedupeMetrics(found []model.FinancialMetric) []model.FinancialMetric {
	best := map[string]int{}
	out := make([]model.FinancialMetric, 0, len(found))
	for _, m := range found {
		key := strings.ToLower(m.Name)
		i, seen := best[key]
		if !seen {
			best[key] = len(out)
			out = append(out, m)
			continue
		}
		cur, curOK := out[i].Scaled()
		next, nextOK := m.Scaled()
		if nextOK && (!curOK || next > cur) {
			out[i] = m
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Offset < out[b].Offset })
	return out
}

// maskYears replaces bare four-digit years with letters so the digit-free
// filler can step over them. Byte offsets are unchanged.
func maskYears(text string) string {
	locs := yearPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	b := []byte(text)
	for _, loc := range locs {
		if loc[0] > 0 && strings.ContainsAny(text[loc[0]-1:loc[0]], "$.,") {
			continue
		}
		if unitAfter.MatchString(text[loc[1]:]) {
			continue
		}
		for i := loc[0]; i < loc[1]; i++ {
			b[i] = 'Y'
		}
	}
	return string(b)
}

// snippet returns up to radius bytes of context on either side of
// [start, end), cut on rune boundaries with whitespace collapsed.
func snippet(text string, start, end, radius int) string {
	from := max(0, start-radius)
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := min(len(text), end+radius)
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(text[from:to], " "))
}

// AnnotateReliability copies metrics, recording the sentiment of the chunk
// each metric was found in. Metrics in negative chunks are flagged.
func AnnotateReliability(metrics []model.FinancialMetric, sentiment model.SentimentResult) []model.FinancialMetric {
	out := make([]model.FinancialMetric, len(metrics))
	for i, m := range metrics {
		if label, ok := sentiment.LabelAt(m.Offset); ok {
			m.ContextSentiment = label
			m.Reliability = model.ReliabilityNormal
			if label == model.SentimentNegative {
				m.Reliability = model.ReliabilityFlagged
			}
		}
		out[i] = m
	}
	return out
}
