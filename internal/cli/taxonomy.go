// Taxonomy commands.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tally/pkg/types"
)

func newTaxonomyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Manage taxonomies",
		Args:  userArgs(cobra.NoArgs),
	}

	add := &cobra.Command{
		Use:   "add <name> <object-type>...",
		Short: "Register a taxonomy or replace its object types",
		Long: "Register a taxonomy over one or more object types. The order given\n" +
			"is kept. Re-adding a taxonomy replaces its object types.",
		Args: userArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			tax := types.Taxonomy{Name: args[0], ObjectTypes: args[1:]}
			return a.withStack(cmd.Context(), func(s *stack) error {
				if err := s.backend.RegisterTaxonomy(tax.Name, tax.ObjectTypes...); err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), tax)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered taxonomy %s (%s)\n", tax.Name, strings.Join(tax.ObjectTypes, ", "))
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List taxonomies",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStack(cmd.Context(), func(s *stack) error {
				taxes, err := s.backend.Taxonomies()
				if err != nil {
					return err
				}
				if a.jsonMode {
					if taxes == nil {
						taxes = []types.Taxonomy{}
					}
					return printJSON(cmd.OutOrStdout(), taxes)
				}
				rows := make([][]string, 0, len(taxes))
				for _, tax := range taxes {
					rows = append(rows, []string{tax.Name, strings.Join(tax.ObjectTypes, ",")})
				}
				return printTable(cmd.OutOrStdout(), []string{"NAME", "OBJECT TYPES"}, rows)
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
