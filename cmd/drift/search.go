package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search users and groups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := args[0]

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		users := a.roster.SearchUsers(ctx, query)
		groups := a.roster.SearchGroups(ctx, query)

		if len(users) == 0 && len(groups) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, u := range users {
			name := u.Name
			if name == "" {
				name = "(anonymous)"
			}
			fmt.Printf("user   %-24s %s\n", u.ID, name)
		}
		for _, g := range groups {
			fmt.Printf("group  %-24s %s (%d members)\n", g.ID, g.Name, len(g.Members))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
