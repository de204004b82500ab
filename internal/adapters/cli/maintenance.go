package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/fund-facts-assistant/internal/adapters/mcp"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

func newMCPCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the retrieval tools over MCP stdio",
		Long: `Starts a Model Context Protocol server on stdin/stdout with the tools
retrieve_fund_facts, list_schemes and get_fund_record. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCorpus(cmd, deps, func(corpus ports.CorpusService) error {
				return mcpadapter.NewServer(corpus, deps.DefaultLimit).ServeStdio(cmd.Context())
			})
		},
	}
}

func newIndexCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Embed every record and replace the configured embedding sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if deps.BuildIndex == nil {
				return errors.New("index build is not configured")
			}
			report, err := deps.BuildIndex(cmd.Context())
			if err != nil {
				return fmt.Errorf("build index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d records of %s (%d dims) into %v in %s\n",
				report.Records, report.Version, report.Dimensions, report.Sinks, report.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newImportCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "import [corpus_file]",
		Short: "Replace the Postgres snapshot with a JSON or YAML corpus file",
		Long: `Validates the whole corpus file and replaces the snapshot stored in
Postgres in one transaction. Stored embeddings are dropped; run
'fundctl index' with INDEX_SINKS=postgres afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.ImportSnapshot == nil {
				return errors.New("snapshot import is not configured")
			}
			version, records, err := deps.ImportSnapshot(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("import snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records as version %s\n", records, version)
			return nil
		},
	}
}
