// Package publish uploads finalized shards to a Hugging Face dataset
// repository over its HTTP hub API.
package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vgassen/tuchtrecht-harvester/internal/shard"
)

// DefaultEndpoint is the public Hugging Face hub.
const DefaultEndpoint = "https://huggingface.co"

// ErrMissingToken is returned when publishing is requested without an
// access token. It is a fatal configuration error; local shards and state
// remain valid.
var ErrMissingToken = errors.New("publish: access token is required (set HARVESTER_PUBLISH_TOKEN)")

// Config identifies the destination dataset repository.
type Config struct {
	// Endpoint is the hub base URL.
	Endpoint string
	// Repo is the dataset repository ID, e.g. "vgassen/tuchtrecht".
	Repo string
	// Token is the bearer token used for every request.
	Token string
	// Private marks the repository private when it is first created.
	Private bool
	// PathPrefix is the directory inside the repository that shards are
	// uploaded under.
	PathPrefix string
	// RunID is included in commit messages for traceability.
	RunID string
}

// Client implements harvest.Publisher against the hub commit API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client. A missing token fails immediately so the harvest
// never starts with an unpublishable configuration.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Repo == "" {
		return nil, errors.New("publish: dataset repo is required")
	}
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "data"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 120 * time.Second},
		logger: logger,
	}, nil
}

// EnsureRepo creates the dataset repository if it does not exist yet.
func (c *Client) EnsureRepo(ctx context.Context) error {
	payload := map[string]any{
		"type":    "dataset",
		"name":    c.cfg.Repo,
		"private": c.cfg.Private,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal create-repo payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.cfg.Endpoint+"/api/repos/create", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // drained below

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		c.logger.Info("dataset repository created", zap.String("repo", c.cfg.Repo))
		return nil
	case http.StatusConflict:
		// Already exists.
		return nil
	default:
		return fmt.Errorf("create repo %s: %s", c.cfg.Repo, readError(resp))
	}
}

// PublishShard uploads one local shard file as a single commit.
func (c *Client) PublishShard(ctx context.Context, localPath string) error {
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read shard %s: %w", localPath, err)
	}
	if len(raw) == 0 {
		c.logger.Debug("skipping empty shard", zap.String("shard", localPath))
		return nil
	}

	name := filepath.Base(localPath)
	summary := "Add " + name
	if index, ok := shard.ParseIndex(name); ok {
		summary = fmt.Sprintf("Add shard %d", index)
	}
	if c.cfg.RunID != "" {
		summary = fmt.Sprintf("%s (run %s)", summary, c.cfg.RunID)
	}

	body, err := commitPayload(summary, path.Join(c.cfg.PathPrefix, name), raw)
	if err != nil {
		return err
	}

	commitURL := fmt.Sprintf("%s/api/datasets/%s/commit/main", c.cfg.Endpoint, c.cfg.Repo)
	resp, err := c.do(ctx, http.MethodPost, commitURL, "application/x-ndjson", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // drained below

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("commit shard %s: %s", name, readError(resp))
	}
	c.logger.Info("shard published",
		zap.String("shard", name),
		zap.String("repo", c.cfg.Repo),
		zap.Int("bytes", len(raw)))
	return nil
}

// commitPayload builds the NDJSON body of a hub commit: a header line
// followed by one base64-encoded file line.
func commitPayload(summary, repoPath string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	header := map[string]any{
		"key":   "header",
		"value": map[string]any{"summary": summary},
	}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("encode commit header: %w", err)
	}

	file := map[string]any{
		"key": "file",
		"value": map[string]any{
			"path":     repoPath,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString(content),
		},
	}
	if err := enc.Encode(file); err != nil {
		return nil, fmt.Errorf("encode commit file: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

func readError(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	if err != nil || len(raw) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, bytes.TrimSpace(raw))
}
