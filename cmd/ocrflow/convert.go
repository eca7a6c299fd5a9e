package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/manthysbr/ocrflow/internal/adapters/mistral"
	appconfig "github.com/manthysbr/ocrflow/internal/config"
	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	convertOutput  string
	convertWorkers int64
)

var convertCmd = &cobra.Command{
	Use:   "convert [files or directories...]",
	Short: "Convert PDFs to Markdown and write a zip of the results",
	Long: `Convert runs one batch in-process and writes the outputs of every
completed document to a zip archive. Directories are scanned (non-recursively)
for *.pdf files. The API key is read from MISTRAL_API_KEY.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runConvert(ctx, newLogger(), args)
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "results.zip", "zip archive to write")
	convertCmd.Flags().Int64VarP(&convertWorkers, "workers", "w", 0, "concurrent conversions (overrides OCRFLOW_WORKERS)")
}

func runConvert(ctx context.Context, logger *slog.Logger, args []string) error {
	rc, err := appconfig.LoadRuntimeConfig()
	if err != nil {
		return err
	}
	if convertWorkers > 0 {
		rc.Workers = convertWorkers
	}

	paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDF files found: %w", domain.ErrNoValidFiles)
	}

	workDir, err := os.MkdirTemp("", "ocrflow-convert-")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	eng := newEngine(logger, rc, workDir, mistral.NewClient(providerConfig()))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.pool.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	uploads := make([]domain.Upload, 0, len(paths))
	for _, p := range paths {
		uploads = append(uploads, domain.Upload{
			Name: filepath.Base(p),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}

	id, rejected, err := eng.service.CreateTask(ctx, uploads)
	for _, ie := range rejected {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", ie.File, ie.Reason)
	}
	if err != nil {
		return err
	}

	final, err := trackProgress(ctx, eng, id, len(uploads)-len(rejected))
	if err != nil {
		return err
	}
	for _, f := range final.Files {
		if f.Status == domain.FileStatusFailed {
			fmt.Fprintf(os.Stderr, "failed %s: %s\n", f.Name, f.Error)
		}
	}

	archive, err := eng.service.PrepareArchive(id)
	if err != nil {
		return err
	}
	out, err := os.Create(convertOutput)
	if err != nil {
		return fmt.Errorf("create %s: %w", convertOutput, err)
	}
	if err := archive.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", convertOutput, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "wrote %s: %d of %d files converted\n", convertOutput, final.Progress.Completed, final.Progress.Total)
	return nil
}

// trackProgress renders the task's progress stream until it ends. Interrupting
// the command cancels the task: pending files are skipped and the stream ends
// on the cancelled snapshot. Conversions still in flight are aborted when the
// command returns.
func trackProgress(ctx context.Context, eng *engine, id domain.TaskID, total int) (domain.TaskSnapshot, error) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
	)
	defer bar.Finish()

	stream := eng.progress.Subscribe(context.WithoutCancel(ctx), id)
	interrupted := ctx.Done()
	var (
		cause error
		last  domain.TaskSnapshot
	)
	for {
		select {
		case snap, ok := <-stream:
			if !ok {
				if cause != nil {
					return last, fmt.Errorf("interrupted: %w", cause)
				}
				return last, nil
			}
			last = snap
			_ = bar.Set(snap.Progress.Completed + snap.Progress.Failed)
		case <-interrupted:
			cause = ctx.Err()
			interrupted = nil
			if _, err := eng.service.Cancel(id); err != nil {
				fmt.Fprintf(os.Stderr, "cancel: %v\n", err)
			}
		}
	}
}

func expandInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

// providerConfig layers MISTRAL_* variables over the defaults. convert does
// not open the settings database.
func providerConfig() domain.OCRProviderConfig {
	cfg := domain.DefaultConfig().OCR
	env := appconfig.ProviderFromEnv()
	if env.BaseURL != "" {
		cfg.BaseURL = env.BaseURL
	}
	if env.APIKey != "" {
		cfg.APIKey = env.APIKey
	}
	if env.Model != "" {
		cfg.Model = env.Model
	}
	return cfg
}
