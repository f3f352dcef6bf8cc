// Relationship commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLinkCmd(a *app) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "link <taxonomy> <object-type> <object-id> <term-id>...",
		Short: "Attach terms to an object",
		Long: "Attach terms of one taxonomy to an object. With --replace the given\n" +
			"terms become the object's only terms in that taxonomy.",
		Args: userArgs(cobra.MinimumNArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			taxonomy, objectType, objectID, termIDs := args[0], args[1], args[2], args[3:]
			if !replace && len(termIDs) == 0 {
				return userError{fmt.Errorf("link needs at least one term ID")}
			}
			return a.withStack(cmd.Context(), func(s *stack) error {
				var err error
				if replace {
					err = s.relations.SetObjectTerms(objectID, objectType, taxonomy, termIDs...)
				} else {
					err = s.relations.AddObjectTerms(objectID, objectType, taxonomy, termIDs...)
				}
				if err != nil {
					return err
				}
				return a.printLinks(cmd, s, objectID, objectType)
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the object's terms in the taxonomy")
	return cmd
}

func newUnlinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <taxonomy> <object-type> <object-id> <term-id>...",
		Short: "Detach terms from an object",
		Args:  userArgs(cobra.MinimumNArgs(4)),
		RunE: func(cmd *cobra.Command, args []string) error {
			taxonomy, objectType, objectID, termIDs := args[0], args[1], args[2], args[3:]
			return a.withStack(cmd.Context(), func(s *stack) error {
				if err := s.relations.RemoveObjectTerms(objectID, objectType, taxonomy, termIDs...); err != nil {
					return err
				}
				return a.printLinks(cmd, s, objectID, objectType)
			})
		},
	}
}

// printLinks reports the object's terms after a change.
func (a *app) printLinks(cmd *cobra.Command, s *stack, objectID, objectType string) error {
	ids, err := s.backend.ObjectTermIDs(objectID, objectType)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	if a.jsonMode {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"object_id":   objectID,
			"object_type": objectType,
			"term_ids":    ids,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d term(s)\n", objectType, objectID, len(ids))
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
	}
	return nil
}
