package submit

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/local/captionpipe/internal/failure"
	"github.com/local/captionpipe/internal/transport"
)

// Stage is the name used for submission failures and metrics.
const Stage = "submit"

type Options struct {
	URL     string
	Timeout time.Duration
	Client  *resty.Client
	Log     zerolog.Logger
}

// Submitter forwards an inference result to the submission endpoint.
type Submitter struct {
	http *resty.Client
	url  string
	log  zerolog.Logger
}

func New(opts Options) *Submitter {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	c := opts.Client
	if c == nil {
		c = transport.New(transport.Options{Name: "submit", Timeout: opts.Timeout, Log: opts.Log})
	}
	return &Submitter{http: c, url: opts.URL, log: opts.Log}
}

// Submit posts body verbatim. Only the response status is checked.
func (s *Submitter) Submit(ctx context.Context, body []byte, token string) error {
	s.log.Info().Str("url", s.url).Int("bytes", len(body)).Msg("submitting inference result")
	res, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+token).
		SetBody(body).
		Post(s.url)
	if err != nil {
		err = failure.Transport(Stage, err)
		s.log.Error().Err(err).Msg("failed to submit inference result")
		return err
	}
	if !res.IsSuccess() {
		err := failure.Transport(Stage, &failure.HTTPError{StatusCode: res.StatusCode(), URL: s.url, Body: failure.Excerpt(res.Body(), 500)})
		s.log.Error().Err(err).Msg("failed to submit inference result")
		return err
	}
	s.log.Info().Int("status", res.StatusCode()).Msg("response successfully submitted")
	return nil
}
