package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local database status for the group",
	Long: `Show what the local databases hold for the configured group: how many
topics are stored and over what time span, and the per-status file counts.

Reads only local state; no network requests are made.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if groupID != "" {
		cfg.Auth.GroupID = groupID
	}
	if cfg.Auth.GroupID == "" {
		return fmt.Errorf("group id is required (--group or config)")
	}

	fmt.Printf("Group %s\n\n", cfg.Auth.GroupID)

	topicsPath := cfg.Storage.TopicsDBPath(cfg.Auth.GroupID)
	if _, err := os.Stat(topicsPath); err != nil {
		fmt.Println("Topics: no database yet")
	} else {
		topics, err := storage.NewTopicStore(topicsPath)
		if err != nil {
			return err
		}
		defer topics.Close()

		rng, err := topics.TimestampRange()
		if err != nil {
			return err
		}
		if !rng.HasData {
			fmt.Println("Topics: empty")
		} else {
			fmt.Printf("Topics: %d stored, %s .. %s\n", rng.Count, rng.Oldest, rng.Newest)
		}
	}

	filesPath := cfg.Storage.FilesDBPath(cfg.Auth.GroupID)
	if _, err := os.Stat(filesPath); err != nil {
		fmt.Println("Files:  no database yet")
		return nil
	}
	files, err := storage.NewFileStore(filesPath)
	if err != nil {
		return err
	}
	defer files.Close()

	rng, err := files.TimestampRange()
	if err != nil {
		return err
	}
	if !rng.HasData {
		fmt.Println("Files:  empty")
		return nil
	}
	fmt.Printf("Files:  %d stored, %s .. %s\n", rng.Count, rng.Oldest, rng.Newest)

	counts, err := files.StatusCounts()
	if err != nil {
		return err
	}
	for _, status := range []storage.Status{
		storage.StatusPending, storage.StatusCompleted, storage.StatusSkipped, storage.StatusFailed,
	} {
		if n := counts[status]; n > 0 {
			fmt.Printf("        %-10s %d\n", status, n)
		}
	}
	return nil
}
