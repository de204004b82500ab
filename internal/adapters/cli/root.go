package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

// Deps are resolved lazily so that `fundctl --help` needs no corpus or database.
type Deps struct {
	// OpenCorpus loads the corpus. The returned func releases it.
	OpenCorpus     func(ctx context.Context) (ports.CorpusService, func(), error)
	BuildIndex     func(ctx context.Context) (domain.BuildReport, error)
	ImportSnapshot func(ctx context.Context, path string) (version string, records int, err error)
	DefaultLimit   int
}

func NewRootCmd(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "fundctl",
		Short: "Query and maintain the mutual fund facts corpus",
		Long: `fundctl runs the retrieval core locally: ask factual questions about
the fund schemes, inspect records, serve the MCP tools over stdio, and
maintain the corpus snapshot and its embedding index.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newQueryCmd(deps),
		newEntitiesCmd(deps),
		newRecordCmd(deps),
		newRecordsCmd(deps),
		newMCPCmd(deps),
		newIndexCmd(deps),
		newImportCmd(deps),
	)
	return root
}

func withCorpus(cmd *cobra.Command, deps Deps, fn func(ports.CorpusService) error) error {
	if deps.OpenCorpus == nil {
		return errors.New("corpus is not configured")
	}
	corpus, release, err := deps.OpenCorpus(cmd.Context())
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	if release != nil {
		defer release()
	}
	return fn(corpus)
}

func writeJSON(w io.Writer, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
