package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/local/captionpipe/internal/failure"
	"github.com/local/captionpipe/internal/transport"
)

// Stage is the name used for inference failures and metrics.
const Stage = "infer"

// CaptionOptions configures a CaptionClient.
type CaptionOptions struct {
	APIURL  string
	Model   string
	Prompt  string
	Timeout time.Duration
	Client  *resty.Client
	Log     zerolog.Logger
}

// CaptionClient asks a chat-completions style vision endpoint for a detailed caption.
type CaptionClient struct {
	http   *resty.Client
	apiURL string
	model  string
	prompt string
	log    zerolog.Logger
}

var _ Client = (*CaptionClient)(nil)

func NewCaptionClient(opts CaptionOptions) *CaptionClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	c := opts.Client
	if c == nil {
		c = transport.New(transport.Options{Name: "inference", Timeout: opts.Timeout, Log: opts.Log})
	}
	return &CaptionClient{http: c, apiURL: opts.APIURL, model: opts.Model, prompt: opts.Prompt, log: opts.Log}
}

// EncodeImage reads the whole file and returns it base64 encoded.
func EncodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// BuildRequest returns the chat request for one base64 encoded image. The
// image is always labelled image/jpeg, whatever the bytes are.
func (c *CaptionClient) BuildRequest(imageB64 string) ChatRequest {
	return ChatRequest{
		Model: c.model,
		Messages: []Message{{
			Role: "user",
			Content: []ContentPart{
				{Type: "text", Text: c.prompt},
				{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imageB64}},
			},
		}},
	}
}

// Infer posts the image and returns the response body untouched. Any failure
// is logged and returned as a *failure.Error.
func (c *CaptionClient) Infer(ctx context.Context, imagePath, token string) (json.RawMessage, error) {
	body, err := c.infer(ctx, imagePath, token)
	if err != nil {
		c.log.Error().Err(err).Msg("error during inference")
		return nil, err
	}
	c.log.Info().Int("bytes", len(body)).Msg("inference completed successfully")
	return body, nil
}

func (c *CaptionClient) infer(ctx context.Context, imagePath, token string) (json.RawMessage, error) {
	b64, err := EncodeImage(imagePath)
	if err != nil {
		return nil, failure.Extraction(Stage, fmt.Errorf("read image: %w", err))
	}
	payload, err := json.Marshal(c.BuildRequest(b64))
	if err != nil {
		return nil, failure.Transport(Stage, fmt.Errorf("encode request: %w", err))
	}

	c.log.Info().Str("model", c.model).Str("url", c.apiURL).Msg("submitting image for inference")
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+token).
		SetBody(payload).
		Post(c.apiURL)
	if err != nil {
		return nil, failure.Transport(Stage, err)
	}
	if !res.IsSuccess() {
		return nil, failure.Transport(Stage, &failure.HTTPError{StatusCode: res.StatusCode(), URL: c.apiURL, Body: failure.Excerpt(res.Body(), 500)})
	}
	raw := res.Body()
	if !json.Valid(raw) {
		return nil, failure.Transport(Stage, errors.New("inference response is not valid JSON"))
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}
