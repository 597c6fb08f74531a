package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Start a chat with a random stranger",
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

		chatID, ok := a.session.StartRandomChat(ctx)
		if !ok {
			fmt.Println("No one is available to match with right now.")
			return nil
		}

		chat, found := a.store.Chat(chatID)
		if !found {
			return fmt.Errorf("matched chat %q not found", chatID)
		}
		other := chat.OtherParticipant(self.ID)

		fmt.Printf("Matched with %s in %s. Type a message, or /quit to leave.\n", other, chatID)
		return readLoop(ctx, func(line string) {
			a.session.SendMessage(ctx, chatID, line)
		})
	},
}

func init() {
	rootCmd.AddCommand(randomCmd)
}
