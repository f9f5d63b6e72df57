package main

import (
	"context"
	"fmt"
	"strings"

	"resume-search/internal/bootstrap"
	"resume-search/internal/config"
	"resume-search/internal/parser"

	"github.com/spf13/cobra"
)

var (
	extractNormalized bool
	searchJSON        bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf]",
	Short: "Print the text extracted from a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// 提取不依赖外部服务，没有配置文件时使用默认日志配置
		if _, err := loadConfig(); err != nil {
			bootstrap.InitLogger(config.LoggerConfig{Level: "info", Format: "pretty"})
		}
		extractor, err := parser.NewEinoPDFTextExtractor(cmd.Context())
		if err != nil {
			return err
		}
		text, meta, err := extractor.ExtractFullTextFromPDFFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		normalized := parser.Normalize(text)
		fmt.Fprintf(cmd.ErrOrStderr(), "source=%v raw_chars=%d normalized_chars=%d\n",
			meta["source_file_path"], len(text), len(normalized))
		if extractNormalized {
			fmt.Fprintln(cmd.OutOrStdout(), normalized)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "===== raw =====\n%s\n===== normalized =====\n%s\n", text, normalized)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [job description]",
	Short: "Rank processed resumes against a job description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
			resp, err := app.Search.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if searchJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			// 与 HTTP 接口一致：最相似的在最后，score 越小越相似
			for _, r := range resp.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "%8.2f  %s\n", r.Score, r.Filename)
			}
			return nil
		})
	},
}

func init() {
	extractCmd.Flags().BoolVarP(&extractNormalized, "normalized", "n", false, "Print only the normalized text")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print the raw JSON response")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(searchCmd)
}
