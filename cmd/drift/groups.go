package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftchat/client/internal/chat"
	"github.com/driftchat/client/internal/model"
	"github.com/driftchat/client/internal/transport"
)

var (
	groupsCreateDescription string
	groupsOpenLimit         int
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Group room commands",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show trending, new and popular groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		overview := a.roster.GroupsOverview(ctx)
		printGroupSection("Trending", overview.Trending)
		printGroupSection("New", overview.New)
		printGroupSection("Popular", overview.Popular)
		return nil
	},
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.session.Suspend()

		self, err := requireSession(ctx, a)
		if err != nil {
			return err
		}

		group := a.roster.CreateGroup(ctx, args[0], groupsCreateDescription, self.ID)
		fmt.Printf("Created group %s (%s)\n", group.Name, group.ID)
		if strings.HasPrefix(group.ID, "local_group_") {
			fmt.Println("Directory unreachable; group is local until the next sync.")
		}
		return nil
	},
}

var groupsJoinCmd = &cobra.Command{
	Use:   "join <group-id>",
	Short: "Join a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.session.Suspend()

		self, err := requireSession(ctx, a)
		if err != nil {
			return err
		}

		a.roster.JoinGroup(ctx, args[0], self.ID)
		fmt.Printf("Joined group %s\n", args[0])
		return nil
	},
}

var groupsOpenCmd = &cobra.Command{
	Use:   "open <group-id>",
	Short: "Open a group chat and talk interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		groupID := args[0]

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.session.Suspend()

		self, err := requireSession(ctx, a)
		if err != nil {
			return err
		}

		history := a.session.OpenGroupChat(ctx, groupID, "", groupsOpenLimit)
		printMessages(self.ID, history)

		// Display-only; inbound routing into the store is handled by the
		// group subscription the open registered.
		a.relay.SubscribeGroup(groupID, func(ev transport.MessageEvent) {
			if ev.FromUserID != self.ID {
				fmt.Printf("[%s] %s: %s\n", ev.Timestamp.Format("15:04"), ev.FromUserID, ev.Body)
			}
		})

		name := groupID
		if group := a.roster.Group(groupID); group != nil {
			name = group.Name
		}
		fmt.Printf("In %s as %s. Type a message, or /quit to leave.\n", name, self.ID)

		chatID := chat.GroupChatID(groupID)
		return readLoop(ctx, func(line string) {
			a.session.SendMessage(ctx, chatID, line)
		})
	},
}

func printGroupSection(title string, groups []model.Group) {
	fmt.Printf("%s:\n", title)
	if len(groups) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, g := range groups {
		fmt.Printf("  %-24s %s (%d members)\n", g.ID, g.Name, len(g.Members))
	}
}

func init() {
	groupsCreateCmd.Flags().StringVar(&groupsCreateDescription, "description", "", "group description")
	groupsOpenCmd.Flags().IntVar(&groupsOpenLimit, "limit", 20, "history page size")

	groupsCmd.AddCommand(groupsListCmd, groupsCreateCmd, groupsJoinCmd, groupsOpenCmd)
	rootCmd.AddCommand(groupsCmd)
}
