package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/local/captionpipe/internal/failure"
	"github.com/local/captionpipe/internal/filetype"
	"github.com/local/captionpipe/internal/transport"
)

// Stage is the name used for fetch failures and metrics.
const Stage = "fetch_image"

// Options configures a Scraper.
type Options struct {
	TargetURL       string
	OutputDir       string
	FileName        string
	UserAgent       string
	DownloadTimeout time.Duration

	Renderer Renderer
	// Client downloads remote images; built from DownloadTimeout when nil.
	Client   *resty.Client
	Detector *filetype.Detector
	Log      zerolog.Logger
}

// Scraper extracts the first image of one page to a file.
type Scraper struct {
	opts   Options
	client *resty.Client
	detect *filetype.Detector
	log    zerolog.Logger
}

func New(opts Options) *Scraper {
	if opts.FileName == "" {
		opts.FileName = "scraped_image.jpg"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0"
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = transport.New(transport.Options{
			Name:      "image_download",
			Timeout:   opts.DownloadTimeout,
			UserAgent: opts.UserAgent,
			Log:       opts.Log,
		})
	}
	detect := opts.Detector
	if detect == nil {
		detect = filetype.New()
	}
	return &Scraper{opts: opts, client: client, detect: detect, log: opts.Log}
}

// OutputPath is where Scrape writes the image.
func (s *Scraper) OutputPath() string {
	return filepath.Join(s.opts.OutputDir, s.opts.FileName)
}

// Scrape renders the target page, extracts its first image and writes it to
// OutputPath. Every failure is logged and returned as a *failure.Error; a
// panic inside the stage is converted the same way.
func (s *Scraper) Scrape(ctx context.Context) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			path = ""
			err = failure.Extraction(Stage, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			s.log.Error().Err(err).Str("url", s.opts.TargetURL).Msg("error during scraping")
		}
	}()

	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return "", failure.Extraction(Stage, fmt.Errorf("create output dir: %w", err))
	}
	out := s.OutputPath()
	// a failed run must not leave the previous run's image behind
	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", failure.Extraction(Stage, fmt.Errorf("remove previous image: %w", err))
	}

	html, err := s.opts.Renderer.Render(ctx, s.opts.TargetURL)
	if err != nil {
		var he *failure.HTTPError
		if errors.As(err, &he) {
			return "", failure.Transport(Stage, err)
		}
		return "", failure.Extraction(Stage, err)
	}

	src, err := firstImageSource(html)
	if err != nil {
		return "", failure.Extraction(Stage, err)
	}
	ref, err := ParseImageRef(src, s.opts.TargetURL)
	if err != nil {
		return "", failure.Extraction(Stage, err)
	}

	var data []byte
	if ref.Inline {
		s.log.Info().Str("mime", ref.MIMEType).Msg("image is base64 encoded, decoding directly")
		data, err = ref.Decode()
		if err != nil {
			return "", failure.Extraction(Stage, err)
		}
	} else {
		s.log.Info().Str("src", ref.URL).Msg("downloading image")
		data, err = s.download(ctx, ref.URL)
		if err != nil {
			return "", failure.Transport(Stage, err)
		}
	}

	info := s.detect.Detect(data)
	ev := s.log.Info()
	if !info.IsImage {
		ev = s.log.Warn()
	}
	ev.Str("mime", info.MIMEType).Str("desc", info.Description).Int("bytes", len(data)).Msg("detected image type")

	if err := renameio.WriteFile(out, data, 0o644); err != nil {
		return "", failure.Extraction(Stage, fmt.Errorf("write image: %w", err))
	}
	s.log.Info().Str("path", out).Msg("image successfully saved")
	return out, nil
}

func (s *Scraper) download(ctx context.Context, url string) ([]byte, error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", s.opts.UserAgent).
		SetHeader("Referer", s.opts.TargetURL).
		Get(url)
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, &failure.HTTPError{StatusCode: res.StatusCode(), URL: url, Body: failure.Excerpt(res.Body(), 200)}
	}
	return res.Body(), nil
}

// firstImageSource returns the src of the first img element in document order.
func firstImageSource(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	img := doc.Find("img").First()
	if img.Length() == 0 {
		return "", ErrNoImage
	}
	src, ok := img.Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", ErrNoSource
	}
	return src, nil
}
