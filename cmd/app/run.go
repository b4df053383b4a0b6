package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/local/captionpipe/internal/ai"
	cfgpkg "github.com/local/captionpipe/internal/config"
	logpkg "github.com/local/captionpipe/internal/logger"
	"github.com/local/captionpipe/internal/metrics"
	"github.com/local/captionpipe/internal/orchestrator"
	"github.com/local/captionpipe/internal/scraper"
	"github.com/local/captionpipe/internal/storage"
	"github.com/local/captionpipe/internal/store"
	"github.com/local/captionpipe/internal/submit"
	"github.com/local/captionpipe/internal/transport"
)

func runPipeline(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logpkg.Component("app")

	imagePath := filepath.Join(cfg.Output.Dir, cfg.Output.ImageFile)
	if n := orchestrator.CleanupTemps(time.Hour, imagePath, cfg.Output.ResultFile); n > 0 {
		log.Info().Int("removed", n).Msg("removed stale temp files")
	}

	renderer, err := newRenderer(cfg.Scraper, logpkg.Component("renderer"))
	if err != nil {
		return err
	}

	deps := orchestrator.Dependencies{
		Credentials: cfgpkg.NewTokenResolver(logpkg.Component("credentials")),
		Fetcher: scraper.New(scraper.Options{
			TargetURL:       cfg.Endpoints.TargetURL,
			OutputDir:       cfg.Output.Dir,
			FileName:        cfg.Output.ImageFile,
			UserAgent:       cfg.Scraper.UserAgent,
			DownloadTimeout: cfg.Scraper.DownloadTimeout,
			Renderer:        renderer,
			Log:             logpkg.Component("scraper"),
		}),
		Inference: ai.NewCaptionClient(ai.CaptionOptions{
			APIURL:  cfg.Endpoints.APIURL,
			Model:   cfg.Inference.Model,
			Prompt:  cfg.Inference.Prompt,
			Timeout: cfg.Inference.Timeout,
			Log:     logpkg.Component("inference"),
		}),
		Submitter: submit.New(submit.Options{
			URL:     cfg.Endpoints.SubmitURL,
			Timeout: cfg.SubmitTimeout,
			Log:     logpkg.Component("submit"),
		}),
		ResultPath: cfg.Output.ResultFile,
		Log:        logpkg.Component("pipeline"),
	}

	if rs := openStatusStore(log); rs != nil {
		defer rs.Close()
		deps.Status = orchestrator.NewStatusAdapter(rs)
	}
	if arch := openArchive(ctx, log); arch != nil {
		deps.Archive = arch
	}

	out := orchestrator.New(deps).Run(ctx)
	report(out)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("failed to write metrics")
		}
	}
	if out.State != orchestrator.StateDone {
		return errAborted
	}
	return nil
}

func newRenderer(sc cfgpkg.ScraperConfig, log zerolog.Logger) (scraper.Renderer, error) {
	switch sc.Renderer {
	case "", "chrome":
		return &scraper.ChromeRenderer{
			Width:             sc.ViewportWidth,
			Height:            sc.ViewportHeight,
			UserAgent:         sc.UserAgent,
			SettleDelay:       sc.SettleDelay,
			NavigationTimeout: sc.NavigationTimeout,
			ExecPath:          sc.BrowserPath,
			Log:               log,
		}, nil
	case "http":
		return &scraper.HTTPRenderer{
			Client: transport.New(transport.Options{
				Name:      "page",
				Timeout:   sc.NavigationTimeout,
				UserAgent: sc.UserAgent,
				Log:       log,
			}),
			Log: log,
		}, nil
	default:
		return nil, fmt.Errorf("unknown renderer %q (want chrome or http)", sc.Renderer)
	}
}

// Status and archive are extras: a run goes ahead without them.
func openStatusStore(log zerolog.Logger) *store.RedisStatus {
	if cfg.StatusRedisURL == "" {
		return nil
	}
	rs, err := store.NewRedisStatus(cfg.StatusRedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("run status disabled")
		return nil
	}
	return rs
}

func openArchive(ctx context.Context, log zerolog.Logger) *storage.S3Archive {
	if cfg.Archive.Bucket == "" {
		return nil
	}
	arch, err := storage.NewS3Archive(ctx, storage.Options{
		Bucket:          cfg.Archive.Bucket,
		Prefix:          cfg.Archive.Prefix,
		Region:          cfg.Archive.Region,
		Endpoint:        cfg.Archive.Endpoint,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
		Passphrase:      cfg.Archive.Passphrase,
		Log:             logpkg.Component("archive"),
	})
	if err != nil {
		log.Warn().Err(err).Msg("archive disabled")
		return nil
	}
	return arch
}

func report(out orchestrator.Outcome) {
	switch {
	case out.Submitted:
		fmt.Fprintln(os.Stdout, "✔️ Inference result successfully submitted!")
	case out.FailedAt == orchestrator.StateSubmit:
		fmt.Fprintln(os.Stdout, "❌ Error submitting the inference result.")
	}
	if out.Submitted && out.CaptionErr == nil {
		fmt.Fprintln(os.Stdout, "\nDetailed Caption Result:")
		fmt.Fprintln(os.Stdout, out.Caption)
	}
}
