package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	logpkg "github.com/local/captionpipe/internal/logger"
	"github.com/local/captionpipe/internal/statuscheck"
	"github.com/local/captionpipe/internal/store"
)

type failedPing struct{ err error }

func (f failedPing) Ping(context.Context) error { return f.err }

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the browser, endpoints and optional stores are reachable.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		log := logpkg.Component("check")

		opts := statuscheck.Options{
			Renderer:    cfg.Scraper.Renderer,
			BrowserPath: cfg.Scraper.BrowserPath,
			TargetURL:   cfg.Endpoints.TargetURL,
			APIURL:      cfg.Endpoints.APIURL,
			SubmitURL:   cfg.Endpoints.SubmitURL,
		}
		if cfg.StatusRedisURL != "" {
			rs, err := store.NewRedisStatus(cfg.StatusRedisURL)
			if err != nil {
				opts.Redis = failedPing{err}
			} else {
				defer rs.Close()
				opts.Redis = rs
			}
		}
		if arch := openArchive(ctx, log); arch != nil {
			opts.Bucket = arch
		}

		summary := statuscheck.New(opts).Summary(ctx)
		b, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(b))
		if !summary.OK() {
			return fmt.Errorf("preflight check failed")
		}
		return nil
	},
}
