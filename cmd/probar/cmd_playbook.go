package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paiml/probar/internal/playbook"
)

// newPlaybookCmd wires the `playbook` command: parse a playbook file
// and run its structural validation. Without a wired application there
// are no real predicate implementations to check invariants/guards
// against, so --validate treats every predicate name the document
// itself references as known — it checks the machine's shape (states,
// transitions, forbidden-pair disjointness), not application semantics.
func newPlaybookCmd() *cobra.Command {
	var validateOnly bool

	cmd := &cobra.Command{
		Use:   "playbook <path>",
		Short: "parse and validate a playbook file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read playbook: %w", err)
			}

			doc, err := playbook.Parse(data)
			if err != nil {
				return fmt.Errorf("parse playbook: %w", err)
			}

			known := referencedPredicates(doc)
			if _, err := playbook.Validate(doc, known); err != nil {
				return fmt.Errorf("validate playbook: %w", err)
			}

			fmt.Printf("%s: ok (%d states, %d mutations)\n", doc.Name, len(doc.Machine.States), len(doc.Falsification.Mutations))
			if validateOnly {
				return nil
			}
			logger.Info("playbook is structurally valid; wire an application's predicates and an event source to run it")
			return nil
		},
	}
	cmd.Flags().BoolVar(&validateOnly, "validate", true, "only validate structure, do not attempt to run")
	return cmd
}

func referencedPredicates(doc *playbook.Document) map[string]struct{} {
	known := make(map[string]struct{})
	add := func(names ...string) {
		for _, n := range names {
			if n != "" {
				known[n] = struct{}{}
			}
		}
	}
	for _, st := range doc.Machine.States {
		add(st.Invariants...)
	}
	for _, t := range doc.Machine.Transitions {
		add(t.Guards...)
		add(t.Assertions...)
	}
	return known
}
