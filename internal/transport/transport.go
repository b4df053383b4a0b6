package transport

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Options configures an outbound HTTP client.
type Options struct {
	Name      string
	Timeout   time.Duration
	UserAgent string
	Log       zerolog.Logger
}

// New returns a resty client with a hard timeout, no retries and request
// logging attached.
func New(opts Options) *resty.Client {
	c := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0)
	if opts.UserAgent != "" {
		c.SetHeader("User-Agent", opts.UserAgent)
	}
	Instrument(c, opts.Name, opts.Log)
	return c
}

// Instrument logs every completed request at debug level and every
// transport error at warn level.
func Instrument(c *resty.Client, name string, log zerolog.Logger) {
	l := log.With().Str("client", name).Logger()
	c.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		l.Debug().
			Str("method", res.Request.Method).
			Str("url", res.Request.URL).
			Int("status", res.StatusCode()).
			Int64("bytes", res.Size()).
			Dur("duration", res.Time()).
			Msg("request completed")
		return nil
	})
	c.OnError(func(req *resty.Request, err error) {
		l.Warn().
			Err(err).
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("request failed")
	})
}
