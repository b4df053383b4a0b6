package config

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"TARGET_URL", "API_URL", "SUBMIT_URL", "OUTPUT_DIR", "SETTLE_DELAY", "RENDERER"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	require.Equal(t, DefaultTargetURL, cfg.Endpoints.TargetURL)
	require.Equal(t, DefaultAPIURL, cfg.Endpoints.APIURL)
	require.Equal(t, DefaultSubmitURL, cfg.Endpoints.SubmitURL)
	require.Equal(t, "scraped_images", cfg.Output.Dir)
	require.Equal(t, "scraped_image.jpg", cfg.Output.ImageFile)
	require.Equal(t, "inference_result.json", cfg.Output.ResultFile)
	require.Equal(t, 3*time.Second, cfg.Scraper.SettleDelay)
	require.Equal(t, 30*time.Second, cfg.Scraper.DownloadTimeout)
	require.Equal(t, 60*time.Second, cfg.Inference.Timeout)
	require.Equal(t, 60*time.Second, cfg.SubmitTimeout)
	require.Equal(t, 1280, cfg.Scraper.ViewportWidth)
	require.Equal(t, 800, cfg.Scraper.ViewportHeight)
	require.Equal(t, "Mozilla/5.0", cfg.Scraper.UserAgent)
	require.Equal(t, "chrome", cfg.Scraper.Renderer)
	require.Equal(t, DefaultModel, cfg.Inference.Model)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TARGET_URL", "http://localhost/page")
	t.Setenv("SETTLE_DELAY", "250ms")
	t.Setenv("RENDERER", "HTTP")
	t.Setenv("VIEWPORT_WIDTH", "not-a-number")
	t.Setenv("ARCHIVE_S3_PREFIX", "/captures/")

	cfg := FromEnv()
	require.Equal(t, "http://localhost/page", cfg.Endpoints.TargetURL)
	require.Equal(t, 250*time.Millisecond, cfg.Scraper.SettleDelay)
	require.Equal(t, "http", cfg.Scraper.Renderer)
	require.Equal(t, 1280, cfg.Scraper.ViewportWidth)
	require.Equal(t, "captures", cfg.Archive.Prefix)
}

type fakePrompter struct {
	line  string
	err   error
	calls int
}

func (f *fakePrompter) Prompt(context.Context, string) (string, error) {
	f.calls++
	return f.line, f.err
}

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestTokenPrefersEnvironment(t *testing.T) {
	p := &fakePrompter{line: "from-prompt"}
	r := &TokenResolver{Lookup: lookupFrom(map[string]string{TokenEnv: "from-env"}), Prompter: p, Log: zerolog.Nop()}

	tok, err := r.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-env", tok)
	require.Zero(t, p.calls)
}

func TestTokenFallsBackToPrompt(t *testing.T) {
	p := &fakePrompter{line: "from-prompt"}
	r := &TokenResolver{Lookup: lookupFrom(map[string]string{TokenEnv: ""}), Prompter: p, Log: zerolog.Nop()}

	tok, err := r.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-prompt", tok)
	require.Equal(t, 1, p.calls)
}

func TestTokenPromptClosedIsNotFatal(t *testing.T) {
	r := &TokenResolver{Lookup: lookupFrom(nil), Prompter: &fakePrompter{err: io.EOF}, Log: zerolog.Nop()}

	tok, err := r.Token(context.Background())
	require.NoError(t, err)
	require.Empty(t, tok)
}

func TestTokenPromptOtherErrorIsNotFatal(t *testing.T) {
	r := &TokenResolver{Lookup: lookupFrom(nil), Prompter: &fakePrompter{err: errors.New("tty gone")}, Log: zerolog.Nop()}

	tok, err := r.Token(context.Background())
	require.NoError(t, err)
	require.Empty(t, tok)
}

func TestTokenPromptInterruptAborts(t *testing.T) {
	r := &TokenResolver{Lookup: lookupFrom(nil), Prompter: &fakePrompter{err: readline.ErrInterrupt}, Log: zerolog.Nop()}

	tok, err := r.Token(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, tok)
}
