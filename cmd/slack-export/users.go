package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "Refresh the users CSV from users.list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			dir, err := eng.users.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved %d users to %s\n", dir.Len(), a.cfg.UsersFile)
			return nil
		},
	}
}
