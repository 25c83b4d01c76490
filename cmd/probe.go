package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matna449/annual-report-analyzer/internal/gateway"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check inference credentials and show model routing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("probe"); err != nil {
			return err
		}
		gw := initGateway(cmd.Context())
		formatProbe(cmd.OutOrStdout(), gw.Available(), routesOf(gw))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

type taskRoute struct {
	Task  gateway.Task
	Route gateway.Route
}

// routesOf returns the configured routes in task order.
func routesOf(gw interface{ Route(gateway.Task) gateway.Route }) []taskRoute {
	tasks := []gateway.Task{
		gateway.TaskSentiment,
		gateway.TaskNER,
		gateway.TaskSummarization,
		gateway.TaskGeneration,
	}
	out := make([]taskRoute, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskRoute{Task: t, Route: gw.Route(t)})
	}
	return out
}

// formatProbe writes availability and per-task routing. When remote calls
// are disabled every task is served by its offline payload.
func formatProbe(out io.Writer, available bool, routes []taskRoute) {
	mode := "offline (heuristic fallbacks)"
	if available {
		mode = "remote"
	}
	_, _ = fmt.Fprintf(out, "Inference: %s\n\n", mode)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tPRIMARY\tFALLBACK\tSERVED BY")
	for _, r := range routes {
		served := "mock"
		if available {
			served = r.Route.Primary
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Task, r.Route.Primary, r.Route.Fallback, served)
	}
	_ = w.Flush()
}
