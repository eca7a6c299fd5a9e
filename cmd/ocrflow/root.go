package main

import (
	"log/slog"
	"os"

	appconfig "github.com/manthysbr/ocrflow/internal/config"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "ocrflow",
	Short: "Batch PDF to Markdown conversion over the Mistral OCR API",
	Long: `ocrflow converts batches of PDF documents to Markdown (plus extracted
images) with the Mistral OCR service. Run "serve" for the HTTP API with live
progress, pause, resume and cancel, or "convert" for a one-shot batch.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		appconfig.LoadDotEnv(envFiles...)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(convertCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
