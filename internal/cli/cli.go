package cli

import (
	"os"

	"github.com/maheshchichkoti/email-archiver/internal/config"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db  *gorm.DB
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "email-archiver",
	Short: "Mailbox archiving service",
	Long: `email-archiver continuously mirrors a Gmail mailbox into local
durable storage, uploading attachments to Google Drive.

Command line usage:
  email-archiver sync      # run one synchronization cycle now
  email-archiver status    # show authorization state and archive counts

Running without arguments starts the HTTP server and the periodic
synchronization scheduler.`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, config *config.Config) {
	db = database
	cfg = config

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
