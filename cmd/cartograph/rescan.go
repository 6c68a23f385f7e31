package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cartograph/internal/graphengine"
	"github.com/tonimelisma/cartograph/internal/pathnode"
)

func newRescanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescan",
		Short: "Build the graph from a full directory walk and report problems",
		Long: `Performs a one-shot full scan of the watched directory, builds the graph,
and reports every parse error and invalid connection found, then exits.
Useful for CI-style validation without running the server.`,
		RunE: runRescan,
	}
}

type rescanReport struct {
	Nodes              int             `json:"nodes"`
	ParseErrors        []rescanPathErr `json:"parse_errors"`
	InvalidConnections []rescanInvalid `json:"invalid_connections"`
}

type rescanPathErr struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type rescanInvalid struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

func runRescan(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Holder.Config()

	g, err := graphengine.FromDir(context.Background(), cfg.WatchDir, pathnode.ParseConfig{
		LinkTypes:       cfg.LinkTypes,
		DefaultLinkType: cfg.DefaultLinkType,
		ActionKeywords:  cfg.ActionKeywords,
		Tags:            cfg.Tags,
	}, indexDefsFrom(cfg), cc.Logger)
	if err != nil {
		return fmt.Errorf("building graph: %w", err)
	}

	report := rescanReport{Nodes: len(g.ListNodes())}

	for _, path := range g.ListPaths() {
		errs, err := g.Errors(path)
		if err != nil {
			continue
		}

		if errs.ParseError != "" {
			report.ParseErrors = append(report.ParseErrors, rescanPathErr{Path: path, Error: errs.ParseError})
		}

		for _, target := range errs.InvalidConnections {
			report.InvalidConnections = append(report.InvalidConnections, rescanInvalid{
				Path:   path,
				Target: target.String(),
			})
		}
	}

	if flagJSON {
		if err := printRescanJSON(report); err != nil {
			return err
		}
	} else {
		printRescanText(report)
	}

	if len(report.ParseErrors) > 0 || len(report.InvalidConnections) > 0 {
		return fmt.Errorf("rescan found %d parse error(s) and %d invalid connection(s)",
			len(report.ParseErrors), len(report.InvalidConnections))
	}

	return nil
}

func printRescanJSON(report rescanReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(report)
}

func printRescanText(report rescanReport) {
	statusf("Scanned %s\n", formatCount(report.Nodes, "node"))

	if len(report.ParseErrors) == 0 && len(report.InvalidConnections) == 0 {
		statusf("No problems found.\n")

		return
	}

	if len(report.ParseErrors) > 0 {
		t := newTable()
		t.AppendHeader(tableRow("Path", "Parse error"))

		for _, e := range report.ParseErrors {
			t.AppendRow(tableRow(e.Path, e.Error))
		}

		t.Render()
	}

	if len(report.InvalidConnections) > 0 {
		t := newTable()
		t.AppendHeader(tableRow("Path", "Invalid connection target"))

		for _, e := range report.InvalidConnections {
			t.AppendRow(tableRow(e.Path, e.Target))
		}

		t.Render()
	}
}
