// Count commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count <taxonomy> <term-id> [object-type]",
		Short: "Show how many objects hold a term",
		Long: "Show the cached number of objects of one type holding a term, or the\n" +
			"count for every object type of the taxonomy when no type is given.",
		Args: userArgs(cobra.RangeArgs(2, 3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			taxonomy, termID := args[0], args[1]
			return a.withStack(cmd.Context(), func(s *stack) error {
				if len(args) == 3 {
					n, err := s.counts.GetObjectCount(termID, taxonomy, args[2])
					if err != nil {
						return err
					}
					if a.jsonMode {
						return printJSON(cmd.OutOrStdout(), map[string]any{
							"term_id":     termID,
							"object_type": args[2],
							"count":       n,
						})
					}
					fmt.Fprintln(cmd.OutOrStdout(), formatCount(n))
					return nil
				}

				byType, err := s.counts.ObjectCounts(termID, taxonomy)
				if err != nil {
					return err
				}
				objectTypes, err := s.backend.ObjectTypesOf(taxonomy)
				if err != nil {
					return err
				}
				total, err := s.backend.GetCount(termID)
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"term_id": termID,
						"counts":  byType,
						"total":   total,
					})
				}
				rows := make([][]string, 0, len(objectTypes)+1)
				for _, ot := range objectTypes {
					rows = append(rows, []string{ot, formatCount(byType[ot])})
				}
				rows = append(rows, []string{"total", formatCount(total)})
				return printTable(cmd.OutOrStdout(), []string{"OBJECT TYPE", "COUNT"}, rows)
			})
		},
	}
}

func newRecountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recount <taxonomy> <term-id>",
		Short: "Drop a term's cached counts and count again",
		Args:  userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			taxonomy, termID := args[0], args[1]
			return a.withStack(cmd.Context(), func(s *stack) error {
				total, err := s.counts.Recount(termID, taxonomy)
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"term_id": termID,
						"total":   total,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recounted %s: %s\n", termID, formatCount(total))
				return nil
			})
		},
	}
}
