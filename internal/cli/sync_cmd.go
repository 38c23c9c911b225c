package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/maheshchichkoti/email-archiver/internal/remote"
	"github.com/maheshchichkoti/email-archiver/internal/services"
	"github.com/spf13/cobra"
)

// syncCmd runs one synchronization cycle and prints the report
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization cycle",
	Run: func(cmd *cobra.Command, args []string) {
		credentialService := services.NewCredentialService(db, cfg.GetEncryptionKey(), cfg.OAuthConfig())
		messageService := services.NewMessageService(db)
		logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
		connector := remote.NewGoogleConnector(credentialService, cfg.DriveFolderID)
		syncService := services.NewSyncService(credentialService, messageService, logService, connector)

		ctx, cancel := context.WithTimeout(context.Background(), services.CycleTimeout)
		defer cancel()

		report, err := syncService.RunCycle(ctx)
		if err != nil {
			if errors.Is(err, services.ErrNotAuthorized) {
				fmt.Fprintln(os.Stderr, "Error: mailbox not authorized; visit /api/oauth/google/auth first")
			} else {
				fmt.Fprintf(os.Stderr, "Error: sync cycle failed: %v\n", err)
			}
			os.Exit(1)
		}

		mode := "incremental"
		if report.Fallback {
			mode = "fallback"
		}
		fmt.Printf("Sync cycle %s finished (%s mode)\n", report.RunID, mode)
		fmt.Printf("  listed:      %d\n", report.Listed)
		fmt.Printf("  stored:      %d\n", report.Stored)
		fmt.Printf("  duplicates:  %d\n", report.Duplicates)
		fmt.Printf("  failed:      %d\n", report.Failed)
		fmt.Printf("  attachments: %d\n", report.Attachments)
		if report.Cursor != nil {
			fmt.Printf("  cursor:      %s\n", *report.Cursor)
		} else {
			fmt.Printf("  cursor:      (none)\n")
		}
	},
}

// statusCmd shows the authorization state and archive counts
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authorization state and archive counts",
	Run: func(cmd *cobra.Command, args []string) {
		credentialService := services.NewCredentialService(db, cfg.GetEncryptionKey(), cfg.OAuthConfig())
		messageService := services.NewMessageService(db)

		cred, err := credentialService.Get()
		switch {
		case err == nil:
			fmt.Println("Authorized:  yes")
			if cred.LastCursor != nil {
				fmt.Printf("Cursor:      %s\n", *cred.LastCursor)
			} else {
				fmt.Println("Cursor:      (never synced)")
			}
			fmt.Printf("Expiry:      %s\n", cred.Expiry.Format("2006-01-02 15:04:05"))
		case errors.Is(err, services.ErrNotAuthorized):
			fmt.Println("Authorized:  no")
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		messages, err := messageService.CountMessages()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		attachments, _ := messageService.CountAttachments()
		fmt.Printf("Messages:    %d\n", messages)
		fmt.Printf("Attachments: %d\n", attachments)
	},
}
