package scraper

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrNoImage       = errors.New("no image found on the page")
	ErrNoSource      = errors.New("image source not found")
	ErrMalformedData = errors.New("malformed data URI")
)

// ImageRef is the parsed src attribute of an image element.
type ImageRef struct {
	Source string

	// Inline form: "data:image/...,<payload>"
	Inline   bool
	MIMEType string
	Base64   bool
	Payload  string

	// Remote form, resolved against the page URL.
	URL string
}

// ParseImageRef classifies src as inline data or a remote URL. Relative
// sources are resolved against pageURL.
func ParseImageRef(src, pageURL string) (ImageRef, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return ImageRef{}, ErrNoSource
	}
	if hasFoldPrefix(src, "data:image") {
		header, payload, ok := strings.Cut(src, ",")
		if !ok {
			return ImageRef{}, fmt.Errorf("%w: missing comma", ErrMalformedData)
		}
		meta := header[len("data:"):]
		params := strings.Split(meta, ";")
		ref := ImageRef{Source: src, Inline: true, MIMEType: strings.ToLower(params[0]), Payload: payload}
		for _, p := range params[1:] {
			if strings.EqualFold(strings.TrimSpace(p), "base64") {
				ref.Base64 = true
			}
		}
		return ref, nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ImageRef{}, fmt.Errorf("parse page url: %w", err)
	}
	u, err := base.Parse(src)
	if err != nil {
		return ImageRef{}, fmt.Errorf("parse image url %q: %w", src, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ImageRef{}, fmt.Errorf("unsupported image url scheme %q", u.Scheme)
	}
	return ImageRef{Source: src, URL: u.String()}, nil
}

// Decode returns the bytes of an inline image.
func (r ImageRef) Decode() ([]byte, error) {
	if !r.Inline {
		return nil, errors.New("image is not inline")
	}
	// The payload is base64 whatever the header declares. Whitespace inside
	// it is tolerated, as browsers do.
	payload := strings.Join(strings.Fields(r.Payload), "")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
