package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag string
	rootCmd = &cobra.Command{
		Use:   "sprucectl",
		Short: "CLI client for the Spruce sync service REST API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8090", "Sync service base URL")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Force a full conversation sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(apiFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(syncCmd)

	updatesCmd := &cobra.Command{
		Use:   "updates",
		Short: "Poll for conversations changed since a watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetString("since")
			return runUpdates(apiFlag, since, os.Stdout)
		},
	}
	updatesCmd.Flags().StringP("since", "s", "", "RFC3339 watermark; empty reports the whole first page")
	rootCmd.AddCommand(updatesCmd)

	conversationsCmd := &cobra.Command{
		Use:   "conversations",
		Short: "List cached conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversations(apiFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(conversationsCmd)

	archiveCmd := &cobra.Command{
		Use:   "archive <conversation-id>",
		Short: "Archive a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(apiFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(archiveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
