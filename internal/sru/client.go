// Package sru enumerates disciplinary rulings through the repository's SRU
// 2.0 searchRetrieve endpoint.
package sru

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/vgassen/tuchtrecht-harvester/internal/harvest"
)

// Defaults for the public repository endpoint.
const (
	DefaultBaseURL     = "https://repository.overheid.nl/sru"
	DefaultFrontendURL = "https://tuchtrecht.overheid.nl"
	DefaultQuery       = "c.product-area==tuchtrecht"
	DefaultPageSize    = 50
)

// Config controls the SRU client.
type Config struct {
	// BaseURL is the searchRetrieve endpoint.
	BaseURL string
	// FrontendURL prefixes ruling identifiers to form canonical URLs.
	FrontendURL string
	// Query is the base CQL filter; a watermark bound is appended per run.
	Query string
	// PageSize is the maximumRecords requested per page.
	PageSize int
	// UserAgent identifies the harvester to the repository.
	UserAgent string
	// Timeout bounds each page request.
	Timeout time.Duration
}

// Client implements harvest.Enumerator against an SRU 2.0 endpoint. It
// holds no crawl state: resumption is driven entirely by the server's
// nextRecordPosition.
type Client struct {
	cfg      Config
	http     *http.Client
	throttle harvest.Throttle
	logger   *zap.Logger
}

// New builds a Client. The throttle spaces successive page fetches and may
// be nil.
func New(cfg Config, throttle harvest.Throttle, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = DefaultFrontendURL
	}
	if cfg.Query == "" {
		cfg.Query = DefaultQuery
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newHTTPTransport(),
		},
		throttle: throttle,
		logger:   logger,
	}
}

// Enumerate walks the paginated result set for documents newer than since
// and invokes fn for each, in server order. A page failure aborts the walk
// with an error; the caller decides how to proceed.
func (c *Client) Enumerate(ctx context.Context, since time.Time, fn func(harvest.Document) error) error {
	query := c.cfg.Query
	if !since.IsZero() {
		query = fmt.Sprintf("%s and dt.modified>=%q", query, since.UTC().Format("2006-01-02"))
	}

	start := 1
	for {
		if c.throttle != nil {
			if err := c.throttle.Wait(ctx); err != nil {
				return err
			}
		}
		page, err := c.fetchPage(ctx, query, start)
		if err != nil {
			return fmt.Errorf("sru page starting at %d: %w", start, err)
		}
		c.logger.Debug("sru page fetched",
			zap.Int("start", start),
			zap.Int("records", len(page.docs)),
			zap.Int("total", page.total))

		for _, doc := range page.docs {
			if err := fn(doc); err != nil {
				return err
			}
		}
		if len(page.docs) == 0 || page.next <= start {
			return nil
		}
		start = page.next
	}
}

type resultPage struct {
	docs  []harvest.Document
	total int
	next  int
}

func (c *Client) fetchPage(ctx context.Context, query string, start int) (resultPage, error) {
	params := url.Values{}
	params.Set("version", "2.0")
	params.Set("operation", "searchRetrieve")
	params.Set("query", query)
	params.Set("startRecord", strconv.Itoa(start))
	params.Set("maximumRecords", strconv.Itoa(c.cfg.PageSize))
	params.Set("recordSchema", "gzd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return resultPage{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return resultPage{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return resultPage{}, &harvest.HTTPStatusError{Code: resp.StatusCode}
	}
	return c.parsePage(resp)
}

// parsePage reads an SRU response. XPath predicates match on local names so
// the parser is indifferent to the server's namespace prefixes.
func (c *Client) parsePage(resp *http.Response) (resultPage, error) {
	root, err := xmlquery.Parse(resp.Body)
	if err != nil {
		return resultPage{}, fmt.Errorf("parse response: %w", err)
	}

	var page resultPage
	if node := xmlquery.FindOne(root, "//*[local-name()='numberOfRecords']"); node != nil {
		page.total, _ = strconv.Atoi(strings.TrimSpace(node.InnerText()))
	}
	if node := xmlquery.FindOne(root, "//*[local-name()='nextRecordPosition']"); node != nil {
		page.next, _ = strconv.Atoi(strings.TrimSpace(node.InnerText()))
	}

	for _, rec := range xmlquery.Find(root, "//*[local-name()='record']") {
		doc, ok := c.parseRecord(rec)
		if !ok {
			continue
		}
		page.docs = append(page.docs, doc)
	}
	return page, nil
}

func (c *Client) parseRecord(rec *xmlquery.Node) (harvest.Document, bool) {
	idNode := xmlquery.FindOne(rec, ".//*[local-name()='identifier']")
	if idNode == nil {
		return harvest.Document{}, false
	}
	identifier := strings.TrimSpace(idNode.InnerText())
	if identifier == "" {
		return harvest.Document{}, false
	}

	canonical := strings.TrimSuffix(c.cfg.FrontendURL, "/") + "/" + identifier

	contentURL := canonical
	item := xmlquery.FindOne(rec, ".//*[local-name()='itemUrl'][@manifestation='xml']")
	if item == nil {
		item = xmlquery.FindOne(rec, ".//*[local-name()='itemUrl']")
	}
	if item != nil {
		if raw := strings.TrimSpace(item.InnerText()); raw != "" {
			contentURL = raw
		}
	}

	return harvest.Document{ID: canonical, ContentURL: contentURL}, true
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
