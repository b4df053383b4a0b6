package statuscheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type bucketFunc func(context.Context) error

func (f bucketFunc) CheckBucket(ctx context.Context) error { return f(ctx) }

func TestSummaryAllHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	c := New(Options{
		Redis:     pingFunc(func(context.Context) error { return nil }),
		Bucket:    bucketFunc(func(context.Context) error { return nil }),
		Renderer:  "http",
		TargetURL: srv.URL + "/page",
		APIURL:    srv.URL + "/v1/chat/completions",
		SubmitURL: srv.URL + "/submit",
	})
	s := c.Summary(context.Background())
	require.True(t, s.OK(), "%+v", s)
	require.Equal(t, "Not required", s.Browser.Message)
	require.Equal(t, "HTTP 405", s.API.Message)
	require.Equal(t, "Connected", s.Redis.Message)
}

func TestSummaryOptionalPartsNotConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New(Options{Renderer: "http", TargetURL: srv.URL, APIURL: srv.URL, SubmitURL: srv.URL})
	s := c.Summary(context.Background())
	require.True(t, s.OK())
	require.Equal(t, "Not configured", s.Redis.Message)
	require.Equal(t, "Not configured", s.S3.Message)
}

func TestSummaryFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(Options{
		Redis:     pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		Bucket:    bucketFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 300)) }),
		Renderer:  "http",
		TargetURL: url,
		APIURL:    url,
	})
	s := c.Summary(context.Background())
	require.False(t, s.OK())
	require.False(t, s.Target.OK)
	require.False(t, s.Submit.OK)
	require.Equal(t, "URL not configured", s.Submit.Message)
	require.Equal(t, "connection refused", s.Redis.Message)
	require.Len(t, s.S3.Message, 120)
}

func TestCheckBrowser(t *testing.T) {
	c := New(Options{Renderer: "chrome"})
	c.lookPath = func(name string) (string, error) {
		if name == "chromium" {
			return "/usr/bin/chromium", nil
		}
		return "", errors.New("not found")
	}
	require.Equal(t, Status{OK: true, Message: "/usr/bin/chromium"}, c.checkBrowser())

	c.browserPath = "/opt/chrome/chrome"
	require.False(t, c.checkBrowser().OK)

	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	c.browserPath = ""
	require.Equal(t, Status{OK: false, Message: "Binary not found"}, c.checkBrowser())
}
