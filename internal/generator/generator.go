// Package generator is the client for the external image generation service.
// The service is a black box: we send a request and either get images back or
// an error, and the caller decides what happens to the reserved credit.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/f2re/sale-photosession-bot/internal/config"
)

var (
	ErrFailed      = errors.New("generation failed")
	ErrBadRequest  = errors.New("generation request rejected")
	ErrUnavailable = errors.New("generator unavailable")
)

type Request struct {
	UserID      uint64   `json:"user_id"`
	ImageURL    string   `json:"image_url"`
	Styles      []string `json:"styles,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
}

type Image struct {
	URL   string `json:"url"`
	Style string `json:"style,omitempty"`
}

type Result struct {
	Images []Image `json:"images"`
	// Failed counts variants the service could not produce.
	Failed int `json:"failed"`
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

type Client struct {
	url     string
	timeout time.Duration
	retries uint64
	http    *http.Client

	newBackOff func() backoff.BackOff
}

func New(cfg config.GeneratorConfig) *Client {
	return &Client{
		url:     strings.TrimRight(cfg.URL, "/"),
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		http:    &http.Client{},

		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Generate posts req and retries transient failures with exponential backoff.
// A result with no images is reported as ErrFailed.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	var res Result

	op := func() error {
		var err error
		res, err = c.post(ctx, body)
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return backoff.Permanent(err)
		}

		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.retries), ctx)

	err = backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		slog.Warn("generator call failed, retrying", "user_id", req.UserID, "error", err, "wait", wait)
	})
	if err != nil {
		return Result{}, err
	}

	if len(res.Images) == 0 {
		return Result{}, fmt.Errorf("%w: no images produced", ErrFailed)
	}

	return res, nil
}

func (c *Client) post(ctx context.Context, body []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrBadRequest, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var res Result

	err = json.NewDecoder(resp.Body).Decode(&res)
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %w", ErrFailed, err)
	}

	return res, nil
}
