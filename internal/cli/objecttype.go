// Object type commands.
package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tally/pkg/types"
)

func newTypeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "type",
		Short: "Manage object types",
		Args:  userArgs(cobra.NoArgs),
	}

	var uncounted bool
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register an object type",
		Long: "Register an object type. Types added with --uncounted have no\n" +
			"update-count behaviour and always report zero.",
		Args: userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ot := types.ObjectType{Name: args[0], Countable: !uncounted}
			return a.withStack(cmd.Context(), func(s *stack) error {
				if err := s.backend.RegisterObjectType(ot); err != nil {
					return err
				}
				if a.jsonMode {
					return printJSON(cmd.OutOrStdout(), ot)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered object type %s\n", ot.Name)
				return nil
			})
		},
	}
	add.Flags().BoolVar(&uncounted, "uncounted", false, "the type does not support counting")

	list := &cobra.Command{
		Use:   "list",
		Short: "List object types",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStack(cmd.Context(), func(s *stack) error {
				ots, err := s.backend.ObjectTypes()
				if err != nil {
					return err
				}
				if a.jsonMode {
					if ots == nil {
						ots = []types.ObjectType{}
					}
					return printJSON(cmd.OutOrStdout(), ots)
				}
				rows := make([][]string, 0, len(ots))
				for _, ot := range ots {
					rows = append(rows, []string{ot.Name, strconv.FormatBool(ot.Countable)})
				}
				return printTable(cmd.OutOrStdout(), []string{"NAME", "COUNTABLE"}, rows)
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
