package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftchat/client/internal/model"
	"github.com/driftchat/client/internal/transport"
)

var chatHistoryLimit int

var chatCmd = &cobra.Command{
	Use:   "chat <user-id>",
	Short: "Open a direct chat and talk interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		otherID := args[0]

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.session.Suspend()

		self, err := requireSession(ctx, a)
		if err != nil {
			return err
		}
		if otherID == self.ID {
			return fmt.Errorf("cannot chat with yourself")
		}

		chatID := a.session.StartDirectChat(ctx, otherID)
		if chatID == "" {
			return fmt.Errorf("could not open chat with %q", otherID)
		}

		history := a.session.OpenDirectChat(ctx, otherID, "", chatHistoryLimit)
		printMessages(self.ID, history)

		if a.tracker.IsOnline(otherID) {
			fmt.Printf("-- %s is online --\n", otherID)
		}

		// Display-only listeners. Routing into the conversation store is
		// already wired by the session controller.
		a.relay.OnMessage(func(ev transport.MessageEvent) {
			if ev.FromUserID == otherID {
				fmt.Printf("[%s] %s: %s\n", ev.Timestamp.Format("15:04"), ev.FromUserID, ev.Body)
			}
		})
		a.relay.OnTyping(func(fromUserID string) {
			if fromUserID == otherID {
				fmt.Printf("-- %s is typing --\n", fromUserID)
			}
		})
		a.relay.OnUserOffline(func(userID string) {
			if userID == otherID {
				fmt.Printf("-- %s went offline --\n", userID)
			}
		})

		fmt.Printf("Chatting with %s as %s. Type a message, or /quit to leave.\n", otherID, self.ID)
		return readLoop(ctx, func(line string) {
			a.session.SendTyping(otherID)
			a.session.SendMessage(ctx, chatID, line)
			a.session.SendStopTyping(otherID)
		})
	},
}

// readLoop feeds non-empty stdin lines to send until EOF or /quit.
func readLoop(ctx context.Context, send func(string)) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		send(line)
	}
	return scanner.Err()
}

func printMessages(selfID string, msgs []model.Message) {
	for _, msg := range msgs {
		sender := msg.SenderID
		if sender == selfID {
			sender = "you"
		}
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		fmt.Printf("[%s] %s: %s\n", ts.Format("15:04"), sender, msg.Content)
	}
}

func init() {
	chatCmd.Flags().IntVar(&chatHistoryLimit, "limit", 20, "history page size")
	rootCmd.AddCommand(chatCmd)
}
