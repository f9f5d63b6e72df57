package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"resume-search/internal/bootstrap"
	"resume-search/internal/logger"
	"resume-search/internal/storage"

	"github.com/spf13/cobra"
)

var (
	eventsQueue    string
	eventsPrefetch int
	eventsWithText bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow resume-processed events from RabbitMQ",
	Long: `Consume the processed-resume queue and print one JSON line per event.
With --with-text the archived raw text is fetched from MinIO and printed as well.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if app.Storage.RabbitMQ == nil {
				return errors.New("RabbitMQ 未配置或不可用")
			}
			queue := eventsQueue
			if queue == "" {
				queue = app.Config.RabbitMQ.ProcessedQueue
			}
			if queue == "" {
				return errors.New("未指定队列，请设置 rabbitmq.processed_queue 或 --queue")
			}
			if eventsWithText && app.Storage.MinIO == nil {
				return errors.New("--with-text 需要可用的 MinIO")
			}

			log := logger.Component("events")
			out := cmd.OutOrStdout()
			return app.Storage.RabbitMQ.Consume(ctx, queue, eventsPrefetch, func(body []byte) bool {
				var ev storage.ResumeProcessedEvent
				if err := json.Unmarshal(body, &ev); err != nil {
					// 格式错误的消息重投也无法处理，直接确认
					log.Warn().Err(err).Msg("无法解析事件，已丢弃")
					return true
				}
				fmt.Fprintln(out, string(body))
				if eventsWithText && ev.RawTextObjectKey != "" {
					text, err := app.Storage.MinIO.GetRawText(ctx, ev.RawTextObjectKey)
					if err != nil {
						log.Warn().Err(err).Str("key", ev.RawTextObjectKey).Msg("读取原始文本失败")
						return false
					}
					fmt.Fprintln(out, text)
				}
				return true
			})
		})
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush-outbox",
	Short: "Publish pending outbox messages once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			if app.Relay == nil {
				return errors.New("RabbitMQ 未配置或不可用")
			}
			sent, err := app.Relay.Flush(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d event(s)\n", sent)
			return nil
		})
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsQueue, "queue", "", "Queue to consume (default rabbitmq.processed_queue)")
	eventsCmd.Flags().IntVar(&eventsPrefetch, "prefetch", 10, "Prefetch count")
	eventsCmd.Flags().BoolVar(&eventsWithText, "with-text", false, "Also print archived raw text")

	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(flushCmd)
}
