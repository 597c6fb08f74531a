package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftchat/client/internal/directory"
)

var (
	setupName  string
	setupPhone string
	setupEmail string
	setupBio   string

	profileName  string
	profilePhone string
	profileEmail string
	profileBio   string
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create an identity and start a session",
	Long:  "Creates a profile on the directory service. With no flags an anonymous identity is created. The identity is persisted and resumed by every other command.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		user := a.session.SignUp(ctx, directory.UserParams{
			Name:  setupName,
			Phone: setupPhone,
			Email: setupEmail,
			Bio:   setupBio,
		})

		if user.IsAnonymous {
			fmt.Printf("Signed up anonymously as %s\n", user.ID)
		} else {
			fmt.Printf("Signed up as %s (%s)\n", user.Name, user.ID)
		}
		if strings.HasPrefix(user.ID, "local_") {
			fmt.Println("Directory unreachable; identity is local until the next sync.")
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.session.Suspend()

		user, err := requireSession(ctx, a)
		if err != nil {
			return err
		}

		fmt.Printf("ID:        %s\n", user.ID)
		if user.IsAnonymous {
			fmt.Println("Profile:   anonymous")
		} else {
			fmt.Printf("Name:      %s\n", user.Name)
			if user.Email != "" {
				fmt.Printf("Email:     %s\n", user.Email)
			}
			if user.Phone != "" {
				fmt.Printf("Phone:     %s\n", user.Phone)
			}
			if user.Bio != "" {
				fmt.Printf("Bio:       %s\n", user.Bio)
			}
		}
		if !user.LastSeen.IsZero() {
			fmt.Printf("Last seen: %s\n", user.LastSeen.Format(time.RFC3339))
		}
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update the current profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.session.Suspend()

		if _, err := requireSession(ctx, a); err != nil {
			return err
		}

		updated, ok := a.session.UpdateProfile(ctx, directory.UserParams{
			Name:  profileName,
			Phone: profilePhone,
			Email: profileEmail,
			Bio:   profileBio,
		})
		if !ok {
			return fmt.Errorf("no active session")
		}
		fmt.Printf("Updated profile for %s\n", updated.ID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		if _, ok := a.session.Resume(ctx); !ok {
			fmt.Println("No active identity.")
			return nil
		}
		a.session.End(ctx)
		fmt.Println("Logged out. Conversations remain on disk.")
		return nil
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupName, "name", "", "display name (omit for anonymous)")
	setupCmd.Flags().StringVar(&setupPhone, "phone", "", "phone number")
	setupCmd.Flags().StringVar(&setupEmail, "email", "", "email address")
	setupCmd.Flags().StringVar(&setupBio, "bio", "", "short bio")

	profileCmd.Flags().StringVar(&profileName, "name", "", "display name")
	profileCmd.Flags().StringVar(&profilePhone, "phone", "", "phone number")
	profileCmd.Flags().StringVar(&profileEmail, "email", "", "email address")
	profileCmd.Flags().StringVar(&profileBio, "bio", "", "short bio")

	rootCmd.AddCommand(setupCmd, whoamiCmd, profileCmd, logoutCmd)
}
