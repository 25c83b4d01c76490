package pipeline

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/gateway"
	"github.com/matna449/annual-report-analyzer/internal/model"
)

// RiskPrompt prefixes the sampled report text in the generation call.
const RiskPrompt = "Identify the top risk factors mentioned in this financial report: "

const (
	minRiskLength    = 20
	maxRiskLength    = 500
	riskSectionLimit = 20000
	defaultSeverity  = 0.5
)

// RiskSource produces candidate risk statements from a document.
type RiskSource interface {
	RiskFactors(ctx context.Context, text string, chunks []model.Chunk) ([]string, error)
	Method() model.Method
}

// RiskAnalyzer scores risk factors from the model-backed source when the
// gateway is live, otherwise from the section heuristics.
type RiskAnalyzer struct {
	gw        Inferencer
	remote    RiskSource
	heuristic RiskSource
	max       int
	primary   int
}

// NewRiskAnalyzer creates a risk analyzer. sampleChars bounds the text sent
// to the model; maxFactors caps the factor list; primary is the number of
// primary risks reported.
func NewRiskAnalyzer(gw Inferencer, sampleChars, maxOutputTokens, maxFactors, primary int) *RiskAnalyzer {
	if maxFactors <= 0 {
		maxFactors = 20
	}
	if primary <= 0 {
		primary = 5
	}
	return &RiskAnalyzer{
		gw:        gw,
		remote:    &ModelRisks{gw: gw, sampleChars: sampleChars, maxTokens: maxOutputTokens},
		heuristic: SectionRisks{},
		max:       maxFactors,
		primary:   primary,
	}
}

// Analyze returns the risk assessment of the document.
func (r *RiskAnalyzer) Analyze(ctx context.Context, text string, chunks []model.Chunk) model.RiskAssessment {
	source := r.heuristic
	if live(r.gw) && len(chunks) > 0 {
		source = r.remote
	}

	factors, err := source.RiskFactors(ctx, text, chunks)
	if err != nil || len(factors) == 0 {
		if source != r.heuristic {
			zap.L().Info("risk: model path produced no factors, using heuristics", zap.Error(err))
			source = r.heuristic
			factors, _ = source.RiskFactors(ctx, text, chunks)
		}
	}

	factors = dedupeStrings(factors)
	if len(factors) > r.max {
		factors = factors[:r.max]
	}

	assessment := ScoreRisks(factors, r.primary)
	assessment.Method = source.Method()
	return assessment
}

// ModelRisks asks a generation model for risk factors on a sample of the
// first, middle and last chunks.
type ModelRisks struct {
	gw          Inferencer
	sampleChars int
	maxTokens   int
}

// Method implements RiskSource.
func (m *ModelRisks) Method() model.Method { return model.MethodAPI }

// RiskFactors implements RiskSource.
func (m *ModelRisks) RiskFactors(ctx context.Context, _ string, chunks []model.Chunk) ([]string, error) {
	sample := riskSample(chunks, m.sampleChars)
	res := m.gw.Call(ctx, gateway.Request{
		Task:   gateway.TaskGeneration,
		Prompt: RiskPrompt,
		Input:  sample,
		Params: gateway.Params{MaxNewTokens: m.maxTokens},
	})
	if !res.Live() {
		if res.Err != nil {
			return nil, eris.Wrap(res.Err, "risk: generation call")
		}
		return nil, eris.Errorf("risk: generation call returned %s", res.Status)
	}
	return splitFactorLines(res.Payload.Text), nil
}

func riskSample(chunks []model.Chunk, limit int) string {
	var sample string
	if len(chunks) > 3 {
		sample = chunks[0].Text + "\n...\n" + chunks[len(chunks)/2].Text + "\n...\n" + chunks[len(chunks)-1].Text
	} else {
		parts := make([]string, len(chunks))
		for i, c := range chunks {
			parts[i] = c.Text
		}
		sample = strings.Join(parts, "\n")
	}
	if limit > 0 && len(sample) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(sample[cut]) {
			cut--
		}
		sample = sample[:cut]
	}
	return sample
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•▪●]|\d+[.)])\s*`)

func splitFactorLines(reply string) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// SectionRisks extracts risk statements from a "Risk Factors" section, or
// from risk-language sentences when the document has no such section.
type SectionRisks struct{}

// Method implements RiskSource.
func (SectionRisks) Method() model.Method { return model.MethodFallback }

// RiskFactors implements RiskSource.
func (SectionRisks) RiskFactors(_ context.Context, text string, _ []model.Chunk) ([]string, error) {
	return HeuristicRisks(text), nil
}

var (
	riskHeadings = []*regexp.Regexp{
		regexp.MustCompile(`(?:Item|ITEM)\s+1A\.?\s*(?:Risk\s+Factors|RISK\s+FACTORS)`),
		regexp.MustCompile(`Risk\s+Factors|RISK\s+FACTORS`),
		regexp.MustCompile(`Risks\s+and\s+Uncertainties|RISKS\s+AND\s+UNCERTAINTIES`),
	}
	nextItemHeading = regexp.MustCompile(`(?:Item|ITEM)\s+\d+[AB]?\.`)

	bulletItem   = regexp.MustCompile(`(?m)^\s*[•▪●*\-]\s+([A-Z].*)$`)
	numberedItem = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+([A-Z].*)$`)
	paragraphGap = regexp.MustCompile(`\n[ \t]*\n`)
	adverseWords = regexp.MustCompile(`(?i)\b(?:could|may|might|will|would)\s+(?:adversely|negatively|materially)\b`)

	riskKeywords = []string{
		"risk", "uncertain", "adverse", "litigation", "regulatory", "regulation",
		"competition", "volatil", "exposure", "threat", "downturn", "impairment",
	}
)

// HeuristicRisks finds candidate risk statements without a model.
func HeuristicRisks(text string) []string {
	for _, heading := range riskHeadings {
		for _, loc := range heading.FindAllStringIndex(text, -1) {
			if items := sectionItems(riskSection(text, loc[1])); len(items) > 0 {
				return items
			}
		}
	}
	return riskSentences(text)
}

// riskSection returns the text after a heading up to the next "Item N."
// header, or at most riskSectionLimit bytes.
func riskSection(text string, start int) string {
	rest := text[start:]
	if loc := nextItemHeading.FindStringIndex(rest); loc != nil {
		return rest[:loc[0]]
	}
	if len(rest) > riskSectionLimit {
		cut := riskSectionLimit
		for cut > 0 && !utf8.RuneStart(rest[cut]) {
			cut--
		}
		rest = rest[:cut]
	}
	return rest
}

func sectionItems(section string) []string {
	var items []string
	add := func(s string) {
		s = listMarker.ReplaceAllString(strings.TrimSpace(spaceRun.ReplaceAllString(s, " ")), "")
		if n := len(s); n >= minRiskLength && n <= maxRiskLength {
			items = append(items, s)
		}
	}

	for _, m := range bulletItem.FindAllStringSubmatch(section, -1) {
		add(m[1])
	}
	for _, m := range numberedItem.FindAllStringSubmatch(section, -1) {
		add(m[1])
	}
	for _, p := range paragraphGap.Split(section, -1) {
		p = strings.TrimSpace(p)
		if p == "" || !startsUpper(p) || listMarker.MatchString(p) {
			continue
		}
		add(p)
	}
	for _, s := range splitSentences(section) {
		if adverseWords.MatchString(s) {
			add(s)
		}
	}

	return dedupeStrings(items)
}

func riskSentences(text string) []string {
	var out []string
	for _, s := range splitSentences(text) {
		s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
		if n := len(s); n < minRiskLength || n > maxRiskLength {
			continue
		}
		lower := strings.ToLower(s)
		for _, kw := range riskKeywords {
			if strings.Contains(lower, kw) {
				out = append(out, s)
				break
			}
		}
	}
	return dedupeStrings(out)
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r >= 'A' && r <= 'Z'
}

// severityTerms are matched as whole words; the highest match wins.
var severityTerms = []struct {
	re     *regexp.Regexp
	weight float64
}{
	{regexp.MustCompile(`(?i)\bcritical\b`), 1.0},
	{regexp.MustCompile(`(?i)\bsevere(?:ly)?\b`), 1.0},
	{regexp.MustCompile(`(?i)\bhigh\b`), 1.0},
	{regexp.MustCompile(`(?i)\bsignificant(?:ly)?\b`), 0.9},
	{regexp.MustCompile(`(?i)\bsubstantial(?:ly)?\b`), 0.9},
	{regexp.MustCompile(`(?i)\bmajor\b`), 0.8},
	{regexp.MustCompile(`(?i)\bmoderate\b`), 0.6},
	{regexp.MustCompile(`(?i)\bpotential\b`), 0.5},
	{regexp.MustCompile(`(?i)\bpossible\b`), 0.4},
	{regexp.MustCompile(`(?i)\bminor\b`), 0.3},
	{regexp.MustCompile(`(?i)\blimited\b`), 0.2},
	{regexp.MustCompile(`(?i)\bunlikely\b`), 0.1},
	{regexp.MustCompile(`(?i)\brare\b`), 0.1},
}

// Severity returns the weight of the strongest severity word in factor, or
// the default when none matches.
func Severity(factor string) float64 {
	best := -1.0
	for _, t := range severityTerms {
		if t.weight > best && t.re.MatchString(factor) {
			best = t.weight
		}
	}
	if best < 0 {
		return defaultSeverity
	}
	return best
}

// riskCategories is checked in order; the first category with a matching
// keyword wins.
var riskCategories = []struct {
	category model.RiskCategory
	keywords []string
	weight   float64
}{
	{model.RiskLitigation, []string{"litigation", "lawsuit", "legal proceeding", "court", "settlement", "class action"}, 1.0},
	{model.RiskRegulation, []string{"regulat", "compliance", "legislation", "government", "sanction", "tax", "law"}, 0.9},
	{model.RiskCompetition, []string{"competit", "rival", "market share", "new entrant"}, 0.7},
	{model.RiskMarket, []string{"market", "economic", "recession", "inflation", "interest rate", "currency", "exchange rate", "demand", "commodity", "price"}, 0.8},
	{model.RiskCredit, []string{"credit", "debt", "liquidity", "default", "borrow", "counterpart", "covenant"}, 0.9},
	{model.RiskOperational, []string{"operation", "supply chain", "cyber", "system", "personnel", "employee", "disruption", "manufactur", "facilit", "outage"}, 0.8},
}

const otherCategoryWeight = 0.5

// CategorizeRisk buckets a factor by keyword membership.
func CategorizeRisk(factor string) model.RiskCategory {
	lower := strings.ToLower(factor)
	for _, c := range riskCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return model.RiskOther
}

func categoryWeight(c model.RiskCategory) float64 {
	for _, rc := range riskCategories {
		if rc.category == c {
			return rc.weight
		}
	}
	return otherCategoryWeight
}

// ScoreRisks builds an assessment from factor texts: the overall score is
// the summed severity over twice the factor count, clamped to [0, 1]; the
// distribution is severity-weighted and sums to 1.
func ScoreRisks(texts []string, primary int) model.RiskAssessment {
	out := model.RiskAssessment{
		Distribution: map[model.RiskCategory]float64{},
		Factors:      []model.RiskFactor{},
		Primary:      []model.RiskFactor{},
	}
	if len(texts) == 0 {
		return out
	}

	var total float64
	for _, t := range texts {
		f := model.RiskFactor{Text: t, Category: CategorizeRisk(t), Severity: Severity(t)}
		out.Factors = append(out.Factors, f)
		out.Distribution[f.Category] += f.Severity
		total += f.Severity
	}

	out.Score = clamp01(total / float64(2*len(texts)))
	if total > 0 {
		for c, w := range out.Distribution {
			out.Distribution[c] = w / total
		}
	}

	ranked := make([]model.RiskFactor, len(out.Factors))
	copy(ranked, out.Factors)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Severity*categoryWeight(ranked[i].Category) >
			ranked[j].Severity*categoryWeight(ranked[j].Category)
	})
	seen := map[string]bool{}
	for _, f := range ranked {
		if len(out.Primary) >= primary {
			break
		}
		key := normalizeText(f.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Primary = append(out.Primary, f)
	}

	return out
}

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(spaceRun.ReplaceAllString(s, " ")))
	return strings.TrimRight(s, ".;:, ")
}

// dedupeStrings removes normalized duplicates keeping first occurrences.
func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := normalizeText(s)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
