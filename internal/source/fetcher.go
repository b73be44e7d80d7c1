package source

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"catalog/repricer/internal/config"
	"catalog/repricer/internal/domain"
)

// Fetcher downloads product exports over HTTP and reads them into sheets.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.Sheet, error)
}

type httpFetcher struct {
	rl         ratelimit.Limiter
	httpClient *resty.Client
	timeout    time.Duration
}

func NewFetcher(cfg config.SourceConfig) Fetcher {
	timeout := time.Duration(cfg.Timeout) * time.Second

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", "repricer/1.0").
		SetHeader("Accept", "text/html,application/x-ndjson,application/json;q=0.9,*/*;q=0.8")
	if cfg.BaseURL != "" {
		client.SetBaseURL(cfg.BaseURL)
	}

	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &httpFetcher{
		rl:         ratelimit.New(rps),
		httpClient: client,
		timeout:    timeout,
	}
}

// Fetch downloads url and reads it as JSON lines when the response or the
// path says so, otherwise as an HTML table export.
func (f *httpFetcher) Fetch(ctx context.Context, url string) (*domain.Sheet, error) {
	f.rl.Take()

	reqCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.httpClient.R().
		SetContext(reqCtx).
		Get(url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to fetch export: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode(), resp.Status())
	}

	body := strings.NewReader(resp.String())
	var sheet *domain.Sheet
	if isJSONLines(resp.Header().Get("Content-Type"), url) {
		sheet, err = ReadJSONLines(body)
	} else {
		sheet, err = ReadHTMLTable(body)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read export from %s: %w", url, err)
	}

	log.Infof("📥 Fetched %d rows from %s", len(sheet.Rows), url)
	return sheet, nil
}

func isJSONLines(contentType, url string) bool {
	if strings.Contains(contentType, "json") {
		return true
	}
	ext := path.Ext(strings.SplitN(url, "?", 2)[0])
	return ext == ".jsonl" || ext == ".ndjson"
}
