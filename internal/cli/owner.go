package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage owner device tokens",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Register or replace an owner's push token",
	RunE:  runTokenSet,
}

var ownersCmd = &cobra.Command{
	Use:   "owners",
	Short: "Maintain owner records",
}

var ownersDedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate owner records, keeping the newest token (mongo only)",
	RunE:  runOwnersDedupe,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	rootCmd.AddCommand(ownersCmd)
	ownersCmd.AddCommand(ownersDedupeCmd)

	tokenSetCmd.Flags().StringP("owner", "o", "", "Owner ID")
	tokenSetCmd.Flags().StringP("token", "t", "", "FCM registration token")
	tokenSetCmd.Flags().String("email", "", "Owner email for email triggers")
	_ = tokenSetCmd.MarkFlagRequired("owner")
}

func runTokenSet(cmd *cobra.Command, _ []string) error {
	owner, _ := cmd.Flags().GetString("owner")

	return withApp(cmd, func(a *app) error {
		tok, err := a.store.GetDeviceToken(cmd.Context(), owner)
		if errors.Is(err, storage.ErrNotFound) {
			tok = &model.OwnerDeviceToken{OwnerID: owner}
		} else if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}

		if cmd.Flags().Changed("token") {
			tok.PushToken, _ = cmd.Flags().GetString("token")
		}
		if cmd.Flags().Changed("email") {
			tok.Email, _ = cmd.Flags().GetString("email")
		}
		tok.UpdatedAt = time.Now().UTC()

		if err := a.store.UpsertDeviceToken(cmd.Context(), tok); err != nil {
			return fmt.Errorf("save token: %w", err)
		}

		fmt.Printf("Owner updated:\n")
		fmt.Printf("  ID:     %s\n", tok.OwnerID)
		fmt.Printf("  Token:  %s\n", maskToken(tok.PushToken))
		fmt.Printf("  Email:  %s\n", tok.Email)
		return nil
	})
}

func maskToken(t string) string {
	if len(t) <= 8 {
		return t
	}
	return t[:4] + "..." + t[len(t)-4:]
}

func runOwnersDedupe(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app) error {
		m, ok := a.store.(*storage.Mongo)
		if !ok {
			fmt.Println("Owner records are unique by key in this storage driver; nothing to do.")
			return nil
		}
		removed, err := m.CleanupDuplicateOwners(cmd.Context())
		if err != nil {
			return fmt.Errorf("dedupe owners: %w", err)
		}
		fmt.Printf("Removed %d duplicate owner records.\n", removed)
		return nil
	})
}
