package main

import (
	"context"
	"errors"
	"fmt"

	"resume-search/internal/bootstrap"
	"resume-search/internal/config"
	"resume-search/internal/processor"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			return app.Storage.MySQL.AutoMigrate(ctx)
		})
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the resume root and register new files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			n, err := app.Pipeline.Discover(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discovered %d new resume(s) under %s\n", n, app.Pipeline.Root())
			return nil
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract, normalize and embed every unprocessed resume",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			report, err := app.Pipeline.ProcessPending(ctx)
			if printErr := printJSON(cmd.OutOrStdout(), report); printErr != nil {
				return errors.Join(err, printErr)
			}
			return err
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover new files, then process all pending resumes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			report, err := app.Pipeline.Run(ctx)
			if errors.Is(err, processor.ErrIngestRunning) {
				fmt.Fprintln(cmd.ErrOrStderr(), "another ingestion run holds the lock, skipping")
				return nil
			}
			if printErr := printJSON(cmd.OutOrStdout(), report); printErr != nil {
				return errors.Join(err, printErr)
			}
			if err != nil {
				return err
			}
			if app.Relay != nil {
				sent, err := app.Relay.Flush(ctx)
				if err != nil {
					return fmt.Errorf("发布处理事件失败: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d event(s)\n", sent)
			}
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the resume root and ingest new files as they appear",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if app.Relay != nil {
				app.Relay.Start(ctx)
			}
			debounce := config.GetDuration(app.Config.Ingest.WatchDebounce, 0)
			return processor.NewWatcher(app.Pipeline, debounce).Run(ctx)
		})
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a sample config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.CreateSampleConfig(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sample config written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(initConfigCmd)
}
