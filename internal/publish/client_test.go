package publish

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgassen/tuchtrecht-harvester/internal/shard"
)

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Repo: "vgassen/tuchtrecht"}, nil)
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = New(Config{Token: "hf_x"}, nil)
	assert.Error(t, err)
}

func TestEnsureRepo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"created", http.StatusCreated, false},
		{"already exists", http.StatusConflict, false},
		{"forbidden", http.StatusForbidden, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotAuth string
			var gotPayload map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/api/repos/create", r.URL.Path)
				gotAuth = r.Header.Get("Authorization")
				require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client, err := New(Config{
				Endpoint: srv.URL,
				Repo:     "vgassen/tuchtrecht",
				Token:    "hf_testtoken",
				Private:  true,
			}, nil)
			require.NoError(t, err)

			err = client.EnsureRepo(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Bearer hf_testtoken", gotAuth)
			assert.Equal(t, "dataset", gotPayload["type"])
			assert.Equal(t, "vgassen/tuchtrecht", gotPayload["name"])
			assert.Equal(t, true, gotPayload["private"])
		})
	}
}

func TestPublishShard(t *testing.T) {
	t.Parallel()

	content := []byte(`{"url":"a","content":"beëindigd","source":"Tuchtrechtspraak"}` + "\n")
	dir := t.TempDir()
	local := filepath.Join(dir, shard.Name(2))
	require.NoError(t, os.WriteFile(local, content, 0o600))

	var (
		gotPath        string
		gotContentType string
		gotBody        []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)
	}))
	defer srv.Close()

	client, err := New(Config{
		Endpoint: srv.URL,
		Repo:     "vgassen/tuchtrecht",
		Token:    "hf_testtoken",
		RunID:    "abc123",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, client.PublishShard(context.Background(), local))

	assert.Equal(t, "/api/datasets/vgassen/tuchtrecht/commit/main", gotPath)
	assert.Equal(t, "application/x-ndjson", gotContentType)

	scanner := bufio.NewScanner(bytes.NewReader(gotBody))

	require.True(t, scanner.Scan())
	var header struct {
		Key   string `json:"key"`
		Value struct {
			Summary string `json:"summary"`
		} `json:"value"`
	}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &header))
	assert.Equal(t, "header", header.Key)
	assert.Equal(t, "Add shard 2 (run abc123)", header.Value.Summary)

	require.True(t, scanner.Scan())
	var file struct {
		Key   string `json:"key"`
		Value struct {
			Path     string `json:"path"`
			Encoding string `json:"encoding"`
			Content  string `json:"content"`
		} `json:"value"`
	}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &file))
	assert.Equal(t, "file", file.Key)
	assert.Equal(t, "data/"+shard.Name(2), file.Value.Path)
	assert.Equal(t, "base64", file.Value.Encoding)

	decoded, err := base64.StdEncoding.DecodeString(file.Value.Content)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)

	require.False(t, scanner.Scan())
}

func TestPublishShardSkipsEmptyFile(t *testing.T) {
	t.Parallel()

	local := filepath.Join(t.TempDir(), shard.Name(0))
	require.NoError(t, os.WriteFile(local, nil, 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected for an empty shard")
	}))
	defer srv.Close()

	client, err := New(Config{Endpoint: srv.URL, Repo: "vgassen/tuchtrecht", Token: "hf_x"}, nil)
	require.NoError(t, err)
	require.NoError(t, client.PublishShard(context.Background(), local))
}

func TestPublishShardServerError(t *testing.T) {
	t.Parallel()

	local := filepath.Join(t.TempDir(), shard.Name(1))
	require.NoError(t, os.WriteFile(local, []byte("{}\n"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := New(Config{Endpoint: srv.URL, Repo: "vgassen/tuchtrecht", Token: "hf_x"}, nil)
	require.NoError(t, err)

	err = client.PublishShard(context.Background(), local)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
