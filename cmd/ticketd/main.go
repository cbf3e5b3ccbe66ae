package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set at build time: -ldflags "-X main.version=..."
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "ticketd",
		Version: version,
		Short:   "Generate and mail QR e-tickets for event registrations",
		Long: `ticketd polls a registration sheet, renders a personalized QR ticket for every
new row, stores it and mails it to the attendee, writing progress back to the sheet.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(adminTokenCmd())
	rootCmd.AddCommand(hashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
