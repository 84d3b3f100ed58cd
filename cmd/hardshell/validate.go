package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hardshell/hardshell/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the policy and inventory without contacting any host",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, inventory, err := loadInputs()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}

			failed := false

			names := make([]string, 0, len(policy.Groups))
			for name := range policy.Groups {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				group, _ := policy.Group(name)
				rs, err := config.Compile(group)
				if err != nil {
					fmt.Fprintf(os.Stderr, "group %s: %v\n", name, err)
					failed = true
					continue
				}
				fmt.Printf("group %s: %d resources\n", name, len(rs))
			}

			for _, h := range inventory.Hosts {
				if _, ok := policy.Group(h.Group); !ok {
					fmt.Fprintf(os.Stderr, "host %s: undeclared group %q\n", h.Name, h.Group)
					failed = true
				}
			}
			fmt.Printf("inventory: %d hosts\n", len(inventory.Hosts))

			if failed {
				os.Exit(1)
			}
			return nil
		},
	}
}
