package sru

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgassen/tuchtrecht-harvester/internal/harvest"
)

func sruPage(identifiers []string, total, next int) string {
	var records strings.Builder
	for _, id := range identifiers {
		fmt.Fprintf(&records, `<srw:record>
  <srw:recordData>
    <gzd:gzd xmlns:gzd="http://standaarden.overheid.nl/sru/gzd/1.0" xmlns:dcterms="http://purl.org/dc/terms/">
      <gzd:originalData><dcterms:identifier>%s</dcterms:identifier></gzd:originalData>
      <gzd:enrichedData>
        <gzd:itemUrl manifestation="html">https://repository.example/%s.html</gzd:itemUrl>
        <gzd:itemUrl manifestation="xml">https://repository.example/%s.xml</gzd:itemUrl>
      </gzd:enrichedData>
    </gzd:gzd>
  </srw:recordData>
</srw:record>`, id, id, id)
	}
	nextElem := ""
	if next > 0 {
		nextElem = fmt.Sprintf("<srw:nextRecordPosition>%d</srw:nextRecordPosition>", next)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<srw:searchRetrieveResponse xmlns:srw="http://docs.oasis-open.org/ns/search-ws/sruResponse">
  <srw:numberOfRecords>%d</srw:numberOfRecords>
  <srw:records>%s</srw:records>
  %s
</srw:searchRetrieveResponse>`, total, records.String(), nextElem)
}

func collect(t *testing.T, c *Client, since time.Time) []harvest.Document {
	t.Helper()
	var docs []harvest.Document
	err := c.Enumerate(context.Background(), since, func(doc harvest.Document) error {
		docs = append(docs, doc)
		return nil
	})
	require.NoError(t, err)
	return docs
}

func TestEnumeratePaginates(t *testing.T) {
	t.Parallel()

	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		requests = append(requests, q.Get("startRecord"))
		assert.Equal(t, "2.0", q.Get("version"))
		assert.Equal(t, "searchRetrieve", q.Get("operation"))
		assert.Equal(t, "gzd", q.Get("recordSchema"))
		assert.Equal(t, "2", q.Get("maximumRecords"))

		w.Header().Set("Content-Type", "application/xml")
		switch q.Get("startRecord") {
		case "1":
			fmt.Fprint(w, sruPage([]string{"zaak-001", "zaak-002"}, 3, 3))
		default:
			fmt.Fprint(w, sruPage([]string{"zaak-003"}, 3, 0))
		}
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:     srv.URL,
		FrontendURL: "https://tuchtrecht.overheid.nl",
		PageSize:    2,
	}, nil, nil)

	docs := collect(t, c, time.Time{})
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"1", "3"}, requests)

	assert.Equal(t, "https://tuchtrecht.overheid.nl/zaak-001", docs[0].ID)
	assert.Equal(t, "https://repository.example/zaak-001.xml", docs[0].ContentURL)
	assert.Equal(t, "https://tuchtrecht.overheid.nl/zaak-003", docs[2].ID)
}

func TestEnumerateAppendsWatermarkBound(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, sruPage(nil, 0, 0))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil, nil)
	since := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)
	docs := collect(t, c, since)

	assert.Empty(t, docs)
	assert.Equal(t, `c.product-area==tuchtrecht and dt.modified>="2025-06-15"`, gotQuery)
}

func TestEnumerateServerErrorAbortsWalk(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil, nil)
	err := c.Enumerate(context.Background(), time.Time{}, func(harvest.Document) error {
		t.Fatal("no documents expected")
		return nil
	})

	require.Error(t, err)
	var statusErr *harvest.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestEnumerateCallbackErrorStopsWalk(t *testing.T) {
	t.Parallel()

	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pages++
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, sruPage([]string{"zaak-001", "zaak-002"}, 10, 3))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil, nil)
	err := c.Enumerate(context.Background(), time.Time{}, func(harvest.Document) error {
		return harvest.ErrStopEnumeration
	})

	assert.ErrorIs(t, err, harvest.ErrStopEnumeration)
	assert.Equal(t, 1, pages)
}

func TestEnumerateFallsBackToCanonicalURL(t *testing.T) {
	t.Parallel()

	page := `<?xml version="1.0"?>
<srw:searchRetrieveResponse xmlns:srw="http://docs.oasis-open.org/ns/search-ws/sruResponse">
  <srw:numberOfRecords>1</srw:numberOfRecords>
  <srw:records><srw:record><srw:recordData>
    <gzd:gzd xmlns:gzd="http://standaarden.overheid.nl/sru/gzd/1.0" xmlns:dcterms="http://purl.org/dc/terms/">
      <gzd:originalData><dcterms:identifier>zaak-007</dcterms:identifier></gzd:originalData>
    </gzd:gzd>
  </srw:recordData></srw:record></srw:records>
</srw:searchRetrieveResponse>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, FrontendURL: "https://tuchtrecht.overheid.nl/"}, nil, nil)
	docs := collect(t, c, time.Time{})

	require.Len(t, docs, 1)
	assert.Equal(t, "https://tuchtrecht.overheid.nl/zaak-007", docs[0].ID)
	assert.Equal(t, docs[0].ID, docs[0].ContentURL)
}
