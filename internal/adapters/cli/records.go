package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/fund-facts-assistant/internal/core/ports"
)

func newEntitiesCmd(deps Deps) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List the fund schemes in the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCorpus(cmd, deps, func(corpus ports.CorpusService) error {
				entities := corpus.ListEntities()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), entities)
				}
				for _, e := range entities {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.ID, e.DisplayName)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newRecordCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "record [record_id]",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCorpus(cmd, deps, func(corpus ports.CorpusService) error {
				rec, ok := corpus.GetRecord(args[0])
				if !ok {
					return fmt.Errorf("record %q not found", args[0])
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func newRecordsCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "records [entity_id]",
		Short: "Print every record of one scheme as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCorpus(cmd, deps, func(corpus ports.CorpusService) error {
				return writeJSON(cmd.OutOrStdout(), corpus.GetRecordsForEntity(args[0]))
			})
		},
	}
}
