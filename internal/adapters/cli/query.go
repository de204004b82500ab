package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

func newQueryCmd(deps Deps) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Retrieve records for a question",
		Long: `Runs the retrieval cascade (exact key, filtered vector search, substring
fallbacks) and prints the records with the method that produced them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withCorpus(cmd, deps, func(corpus ports.CorpusService) error {
				result, err := corpus.Retrieve(cmd.Context(), query, limit)
				if err != nil {
					return fmt.Errorf("retrieve: %w", err)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				printResult(cmd, result)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", deps.DefaultLimit, "maximum number of records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the result as JSON")
	return cmd
}

func printResult(cmd *cobra.Command, result domain.RetrievalResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "method: %s", result.Method)
	if result.EntityHint != "" || result.CategoryHint != "" {
		fmt.Fprintf(out, " (entity=%s category=%s)", orDash(result.EntityHint), orDash(result.CategoryHint))
	}
	fmt.Fprintln(out)
	if len(result.Records) == 0 {
		fmt.Fprintln(out, "No records found.")
		return
	}
	for i, rec := range result.Records {
		fmt.Fprintf(out, "\n  [%d] %s / %s (%.2f)\n", i+1, rec.EntityDisplayName, rec.CategoryTag, result.Scores[i])
		fmt.Fprintf(out, "      %s\n", oneLine(rec.BodyText, 200))
		fmt.Fprintf(out, "      Source: %s\n", rec.SourceRef)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func oneLine(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
