package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/go-resty/resty/v2"
)

// Pinger models the minimal status store capability we need.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker reports whether the archive bucket is reachable.
type BucketChecker interface {
	CheckBucket(ctx context.Context) error
}

// Browsers chromedp looks for when no explicit path is configured.
var browserNames = []string{
	"headless_shell", "headless-shell", "chromium", "chromium-browser",
	"google-chrome", "google-chrome-stable", "google-chrome-beta", "chrome",
}

// Checker runs preflight checks against everything a run depends on.
type Checker struct {
	redis       Pinger
	bucket      BucketChecker
	http        *resty.Client
	renderer    string
	browserPath string
	endpoints   map[string]string
	lookPath    func(string) (string, error)
}

// Options configures the Checker. Redis and Bucket are optional.
type Options struct {
	Redis       Pinger
	Bucket      BucketChecker
	Client      *resty.Client
	Renderer    string
	BrowserPath string
	TargetURL   string
	APIURL      string
	SubmitURL   string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Browser Status `json:"browser"`
	Target  Status `json:"target"`
	API     Status `json:"api"`
	Submit  Status `json:"submit"`
	Redis   Status `json:"redis"`
	S3      Status `json:"s3"`
}

// OK is true when every subsystem is usable.
func (s Summary) OK() bool {
	return s.Browser.OK && s.Target.OK && s.API.OK && s.Submit.OK && s.Redis.OK && s.S3.OK
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	client := opts.Client
	if client == nil {
		client = resty.New().SetTimeout(5 * time.Second)
	}
	return &Checker{
		redis:       opts.Redis,
		bucket:      opts.Bucket,
		http:        client,
		renderer:    opts.Renderer,
		browserPath: opts.BrowserPath,
		endpoints: map[string]string{
			"target": opts.TargetURL,
			"api":    opts.APIURL,
			"submit": opts.SubmitURL,
		},
		lookPath: exec.LookPath,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Browser: c.checkBrowser(),
		Target:  c.checkEndpoint(ctx, c.endpoints["target"]),
		API:     c.checkEndpoint(ctx, c.endpoints["api"]),
		Submit:  c.checkEndpoint(ctx, c.endpoints["submit"]),
		Redis:   c.checkRedis(ctx),
		S3:      c.checkS3(ctx),
	}
}

func (c *Checker) checkBrowser() Status {
	if c.renderer != "" && c.renderer != "chrome" {
		return Status{OK: true, Message: "Not required"}
	}
	if c.browserPath != "" {
		if _, err := c.lookPath(c.browserPath); err != nil {
			return Status{OK: false, Message: "Binary not found: " + c.browserPath}
		}
		return Status{OK: true, Message: c.browserPath}
	}
	for _, name := range browserNames {
		if p, err := c.lookPath(name); err == nil {
			return Status{OK: true, Message: p}
		}
	}
	return Status{OK: false, Message: "Binary not found"}
}

// Any HTTP answer counts: a 405 from a POST-only endpoint still proves it is up.
func (c *Checker) checkEndpoint(ctx context.Context, url string) Status {
	if url == "" {
		return Status{OK: false, Message: "URL not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := c.http.R().SetContext(ctx).Head(url)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: fmt.Sprintf("HTTP %d", res.StatusCode())}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.bucket == nil {
		return Status{OK: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.bucket.CheckBucket(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
