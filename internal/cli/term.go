// Term commands.
package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tally/pkg/types"
)

func newTermCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "term",
		Short: "Manage terms",
		Args:  userArgs(cobra.NoArgs),
	}

	add := &cobra.Command{
		Use:   "add <taxonomy> <name>",
		Short: "Create a term",
		Args:  userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(cmd.Context(), func(s *stack) error {
				term, err := s.backend.CreateTerm(args[0], args[1])
				if err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), term)
				}
				fmt.Fprintln(cmd.OutOrStdout(), term.TermID)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <taxonomy>",
		Short: "List the terms of a taxonomy",
		Args:  userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(cmd.Context(), func(s *stack) error {
				ok, err := s.backend.IsRegistered(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %s", types.ErrInvalidTaxonomy, args[0])
				}
				terms, err := s.backend.Terms(args[0])
				if err != nil {
					return err
				}
				if a.jsonMode {
					if terms == nil {
						terms = []*types.Term{}
					}
					return printJSON(cmd.OutOrStdout(), terms)
				}
				rows := make([][]string, 0, len(terms))
				for _, term := range terms {
					rows = append(rows, []string{term.TermID, term.Name, formatCount(term.Count)})
				}
				return printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "COUNT"}, rows)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <term-id>",
		Short: "Show a term with its per-type counts",
		Args:  userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(cmd.Context(), func(s *stack) error {
				term, err := s.backend.GetTerm(args[0])
				if err != nil {
					return fmt.Errorf("term %s: %w", args[0], err)
				}
				objectTypes, err := s.backend.ObjectTypesOf(term.Taxonomy)
				if err != nil {
					return err
				}
				byType, err := s.counts.ObjectCounts(term.TermID, term.Taxonomy)
				if err != nil {
					return err
				}
				// ObjectCounts may have refreshed the aggregate.
				if term, err = s.backend.GetTerm(term.TermID); err != nil {
					return err
				}

				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"term":   term,
						"counts": byType,
					})
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "ID:       %s\n", term.TermID)
				fmt.Fprintf(w, "Name:     %s\n", term.Name)
				fmt.Fprintf(w, "Taxonomy: %s\n", term.Taxonomy)
				fmt.Fprintf(w, "Created:  %s (%s)\n", term.CreatedAt.Format(time.RFC3339), humanize.Time(term.CreatedAt))
				fmt.Fprintf(w, "Count:    %s\n", formatCount(term.Count))
				for _, ot := range objectTypes {
					fmt.Fprintf(w, "  %s: %s\n", ot, formatCount(byType[ot]))
				}
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, show)
	return cmd
}
