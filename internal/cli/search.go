package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"baria-go/internal/model"
)

var (
	searchTopK     int
	searchMinScore float64
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the leaflet chunks closest to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "number of results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "drop results below this cosine similarity (0 keeps all)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

type searchBody struct {
	Query    string   `json:"query"`
	TopK     int      `json:"top_k"`
	MinScore *float64 `json:"min_score,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	body := searchBody{Query: strings.Join(args, " "), TopK: searchTopK}
	if cmd.Flags().Changed("min-score") {
		body.MinScore = &searchMinScore
	}
	var results []model.QueryResult
	if err := newAPIClient().postJSON(context.Background(), "/search", body, &results); err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, r := range results {
		cmd.Println(fmt.Sprintf("[%d] %s (doc %d, score %.3f)", i+1, r.Source, r.DocumentID, r.Score))
		cmd.Println("    " + snippet(r.Content, 160))
	}
	return nil
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
