package scraper

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/local/captionpipe/internal/transport"
)

func newTestClient() *resty.Client {
	return transport.New(transport.Options{Name: "test", Timeout: 5 * time.Second, Log: zerolog.Nop()})
}
