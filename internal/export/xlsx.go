package export

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/matna449/annual-report-analyzer/internal/model"
)

// Sheet names in the exported workbook.
const (
	SheetOverview = "Overview"
	SheetMetrics  = "Metrics"
	SheetKPIs     = "KPIs"
	SheetRisks    = "Risks"
	SheetInsights = "Insights"
	SheetErrors   = "Errors"
)

type sheetBuilder struct {
	name string
	fill func(*xlsx.Sheet, *model.AnalysisResult)
}

// Workbook builds an xlsx file for res. The Errors sheet is only added when
// a component failed.
func Workbook(res *model.AnalysisResult) (*xlsx.File, error) {
	if res == nil {
		return nil, eris.New("export: nil result")
	}
	f := xlsx.NewFile()

	builders := []sheetBuilder{
		{SheetOverview, fillOverview},
		{SheetMetrics, fillMetrics},
		{SheetKPIs, fillKPIs},
		{SheetRisks, fillRisks},
		{SheetInsights, fillInsights},
	}
	if len(res.ComponentErrors) > 0 {
		builders = append(builders, sheetBuilder{SheetErrors, fillErrors})
	}

	for _, b := range builders {
		sheet, err := f.AddSheet(b.name)
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet %s", b.name)
		}
		b.fill(sheet, res)
	}
	return f, nil
}

// WriteXLSX saves the workbook for res at path.
func WriteXLSX(path string, res *model.AnalysisResult) error {
	f, err := Workbook(res)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// ReadSheet returns all rows of the named sheet as strings.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fillOverview(sheet *xlsx.Sheet, res *model.AnalysisResult) {
	addRow(sheet, "Field", "Value")
	addRow(sheet, "Status", string(res.Status))
	addRow(sheet, "Model Used", res.ModelUsed)
	addRow(sheet, "Chunks", strconv.Itoa(res.ChunkCount))
	addRow(sheet, "Skipped Chunks", strconv.Itoa(res.SkippedChunks))
	addRow(sheet, "Elapsed (ms)", strconv.FormatInt(res.ElapsedMS, 10))
	addRow(sheet, "Sentiment", string(res.Sentiment.Label))
	addRow(sheet, "Sentiment Score", formatFloat(res.Sentiment.Score))
	addRow(sheet, "Risk Score", formatFloat(res.Risk.Score))
	addRow(sheet, "Executive Summary", res.ExecutiveSummary.Text)
	addRow(sheet, "Business Outlook", res.BusinessOutlook.Text)
}

func fillMetrics(sheet *xlsx.Sheet, res *model.AnalysisResult) {
	addRow(sheet, "Name", "Raw Value", "Value", "Unit", "Currency", "Category", "Context Sentiment", "Reliability")
	for _, m := range res.Metrics {
		value := ""
		if m.Value != nil {
			value = formatFloat(*m.Value)
		}
		addRow(sheet, m.Name, m.RawValue, value, string(m.Unit), m.Currency,
			string(m.Category), string(m.ContextSentiment), m.Reliability)
	}
}

func fillKPIs(sheet *xlsx.Sheet, res *model.AnalysisResult) {
	addRow(sheet, "Name", "Value", "Unit", "Band")
	for _, k := range res.KPIs {
		addRow(sheet, k.Name, formatFloat(k.Value), string(k.Unit), k.Band)
	}
}

func fillRisks(sheet *xlsx.Sheet, res *model.AnalysisResult) {
	primary := make(map[string]bool, len(res.Risk.Primary))
	for _, p := range res.Risk.Primary {
		primary[p.Text] = true
	}

	addRow(sheet, "Factor", "Category", "Severity", "Primary")
	for _, f := range res.Risk.Factors {
		addRow(sheet, f.Text, string(f.Category), formatFloat(f.Severity), strconv.FormatBool(primary[f.Text]))
	}
}

func fillInsights(sheet *xlsx.Sheet, res *model.AnalysisResult) {
	addRow(sheet, "Section", "Text")
	for _, s := range []struct {
		name  string
		items []string
	}{
		{"Key Point", res.Insights.KeyPoints},
		{"Trend", res.Insights.Trends},
		{"Recommendation", res.Insights.Recommendations},
	} {
		for _, item := range s.items {
			addRow(sheet, s.name, item)
		}
	}
}

func fillErrors(sheet *xlsx.Sheet, res *model.AnalysisResult) {
	names := make([]string, 0, len(res.ComponentErrors))
	for name := range res.ComponentErrors {
		names = append(names, name)
	}
	sort.Strings(names)

	addRow(sheet, "Component", "Error")
	for _, name := range names {
		addRow(sheet, name, res.ComponentErrors[name])
	}
}
