// Package fetcher retrieves individual ruling documents using the Colly
// collector.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/vgassen/tuchtrecht-harvester/internal/harvest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Client implements harvest.Fetcher using a Colly collector with a pooled
// transport.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := colly.NewCollector()
	// colly v2.1.0's Async option ignores its argument and always enables
	// async mode; set the field directly to keep Visit synchronous.
	c.Async = false
	c.IgnoreRobotsTxt = false
	c.WithTransport(newHTTPTransport())
	return &Client{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET.
func (c *Client) Fetch(ctx context.Context, url string) (harvest.FetchResult, error) {
	var (
		result   harvest.FetchResult
		fetchErr error
	)

	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = harvest.FetchResult{
			Body:        append([]byte(nil), r.Body...),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &harvest.HTTPStatusError{Code: r.StatusCode}
			return
		}
		fetchErr = err
	})

	if err := c.run(ctx, collector, url); err != nil {
		// A non-2xx response surfaces both through OnError and as the
		// Visit return value; prefer the typed status error so the retry
		// policy can classify it.
		if fetchErr != nil {
			return harvest.FetchResult{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		return harvest.FetchResult{}, err
	}
	if fetchErr != nil {
		return harvest.FetchResult{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	return result, nil
}

func (c *Client) run(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
