package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matna449/annual-report-analyzer/internal/export"
	"github.com/matna449/annual-report-analyzer/internal/model"
	"github.com/matna449/annual-report-analyzer/internal/ocr"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one annual report",
	Long:  "Reads a PDF or text report, runs the full analysis and prints the result. Use --file - to read text from stdin.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		hints, _ := cmd.Flags().GetStringArray("hint")
		formatFlag, _ := cmd.Flags().GetString("format")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		save, _ := cmd.Flags().GetBool("save")

		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		hint, err := parseHints(hints)
		if err != nil {
			return err
		}

		text, err := readInput(cmd, file)
		if err != nil {
			return err
		}

		env, err := initAnalysis(ctx, "analyze", save)
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.AnalysisRequest{Text: text, Source: sourceName(file), MetricsHint: hint}
		if len(hint) > 0 {
			zap.L().Debug("analyze: metrics hint", zap.String("hint", formatHints(hint)))
		}

		var run *model.Run
		if save {
			run, err = env.Store.CreateRun(ctx, req.Source)
			if err != nil {
				return eris.Wrap(err, "analyze: create run")
			}
			if err := env.Store.UpdateRunStatus(ctx, run.ID, model.RunRunning); err != nil {
				return eris.Wrap(err, "analyze: update run")
			}
		}

		res := env.Analyzer.Analyze(ctx, req)

		if run != nil {
			if err := env.Store.CompleteRun(ctx, run.ID, res); err != nil {
				return eris.Wrap(err, "analyze: complete run")
			}
			zap.L().Info("analysis saved", zap.String("run_id", run.ID))
		}

		if xlsxPath != "" {
			if err := export.WriteXLSX(xlsxPath, res); err != nil {
				return err
			}
			zap.L().Info("workbook written", zap.String("path", xlsxPath))
		}

		return export.Encode(cmd.OutOrStdout(), res, format)
	},
}

func init() {
	analyzeCmd.Flags().String("file", "", "report to analyze (.pdf, .txt, .md, or - for stdin)")
	analyzeCmd.Flags().StringArray("hint", nil, "known metric as key=value, repeatable (e.g. --hint revenue='$10.5 billion')")
	analyzeCmd.Flags().String("format", "json", "output format: json or yaml")
	analyzeCmd.Flags().String("xlsx", "", "also write an xlsx workbook to this path")
	analyzeCmd.Flags().Bool("save", false, "persist the run in the configured store")
	_ = analyzeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(analyzeCmd)
}

// readInput returns the normalized report text. "-" reads stdin.
func readInput(cmd *cobra.Command, file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", eris.Wrap(err, "analyze: read stdin")
		}
		return ocr.Normalize(string(data)), nil
	}
	return ocr.ReadDocument(cmd.Context(), ocr.NewExtractor(cfg.OCR), file)
}

// parseHints turns key=value flags into a metrics hint map. Keys are
// lower-cased with spaces replaced by underscores.
func parseHints(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	hint := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, eris.Errorf("analyze: invalid hint %q, want key=value", p)
		}
		hint[strings.ReplaceAll(strings.ToLower(k), " ", "_")] = v
	}
	return hint, nil
}

func sourceName(file string) string {
	if file == "-" || file == "" {
		return "stdin"
	}
	return filepath.Base(file)
}

// formatHints renders a hint map for logs in stable key order.
func formatHints(hint map[string]string) string {
	keys := make([]string, 0, len(hint))
	for k := range hint {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, hint[k]))
	}
	return strings.Join(parts, ", ")
}
