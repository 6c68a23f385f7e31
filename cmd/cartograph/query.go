package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cartograph/internal/docmodel"
	"github.com/tonimelisma/cartograph/internal/graphengine"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <node-id>",
		Short: "Fetch a node from a running query server",
		Long: `A thin HTTP client for scripting: fetches /node/{id} from a running
cartograph serve instance and prints its title, body, and connections.`,
		Args: cobra.ExactArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().Bool("body", true, "include the node's body")
	cmd.Flags().Bool("metadata", false, "include scheduling/keyword metadata")
	cmd.Flags().Bool("connections", false, "include outbound connections")

	return cmd
}

func queryServerBaseURL(cc *CLIContext) string {
	cfg := cc.Holder.Config()

	return fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	body, _ := cmd.Flags().GetBool("body")
	metadata, _ := cmd.Flags().GetBool("metadata")
	connections, _ := cmd.Flags().GetBool("connections")

	url := fmt.Sprintf("%s/node/%s?body=%t&metadata=%t&connections=%t",
		queryServerBaseURL(cc), args[0], body, metadata, connections)

	node, err := fetchNode(cmd.Context(), url)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(node)
	}

	printNodeText(node)

	return nil
}

func fetchNode(ctx context.Context, url string) (*graphengine.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var node graphengine.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &node, nil
}

func printNodeText(n *graphengine.Node) {
	statusf("%s\n", n.Title)

	if len(n.Tags) > 0 {
		statusf("  tags: %s\n", strings.Join(n.Tags, ", "))
	}

	if n.Metadata != nil {
		printMetadataText(n.Metadata)
	}

	if n.Body != nil && *n.Body != "" {
		fmt.Println()
		fmt.Println(*n.Body)
	}

	if len(n.Connections) > 0 {
		t := newTable()
		t.AppendHeader(tableRow("Target", "Valid"))

		for _, c := range n.Connections {
			t.AppendRow(tableRow(c.To.String(), c.Valid))
		}

		t.Render()
	}
}

func printMetadataText(m *docmodel.NodeMetadata) {
	if m.Keyword != "" {
		statusf("  keyword: %s\n", m.Keyword)
	}

	if m.Deadline != nil {
		statusf("  deadline: %s (%s)\n", m.Deadline.Date.Format("2006-01-02"), formatAge(m.Deadline.Date))
	}

	if m.Scheduled != nil {
		statusf("  scheduled: %s (%s)\n", m.Scheduled.Date.Format("2006-01-02"), formatAge(m.Scheduled.Date))
	}

	if m.Closed != nil {
		statusf("  closed: %s (%s)\n", m.Closed.Date.Format("2006-01-02"), formatAge(m.Closed.Date))
	}
}
