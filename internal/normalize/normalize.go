// Package normalize converts raw ruling documents (XML or HTML) into plain
// text suitable for dataset records.
package normalize

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/vgassen/tuchtrecht-harvester/internal/harvest"
)

// DefaultMinLength is the quality gate: anything shorter after
// normalization is a spurious or empty page and is dropped.
const DefaultMinLength = 200

var (
	// Rulings end with a signature block naming the chairman and
	// secretary. It is removed together with the "w.g." (was-getekend)
	// markers that precede signatures.
	closingSectionRe = regexp.MustCompile(`(?i)Aldus.*?(?:voorzitter|secretaris).*`)
	signedMarkerRe   = regexp.MustCompile(`(?i)w\.g\.\s*`)
)

// Normalizer implements harvest.Normalizer for the repository's XML and
// HTML manifestations.
type Normalizer struct {
	minLength int
}

// New builds a Normalizer with the given quality gate. Non-positive values
// fall back to DefaultMinLength.
func New(minLength int) *Normalizer {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Normalizer{minLength: minLength}
}

// Normalize extracts the visible text of the fetched document, strips the
// privacy-sensitive closing section, and enforces the quality gate.
func (n *Normalizer) Normalize(doc harvest.Document, res harvest.FetchResult) (string, error) {
	var (
		text string
		err  error
	)
	if isXML(doc, res) {
		text, err = XMLText(res.Body)
	} else {
		text, err = HTMLText(res.Body)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", harvest.ErrLowQuality, doc.ID, err)
	}

	text = StripClosingSection(text)
	if len(text) < n.minLength {
		return "", fmt.Errorf("%w: %s: %d chars", harvest.ErrLowQuality, doc.ID, len(text))
	}
	return text, nil
}

func isXML(doc harvest.Document, res harvest.FetchResult) bool {
	if strings.Contains(res.ContentType, "xml") {
		return true
	}
	if strings.HasSuffix(doc.ContentURL, ".xml") {
		return true
	}
	trimmed := bytes.TrimLeft(res.Body, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<?xml"))
}

// XMLText concatenates all character data in the document, separated by
// single spaces. Malformed trailing markup is tolerated: the text gathered
// before the parse error is kept.
func XMLText(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false

	var chunks []string
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) || len(chunks) > 0 {
				break
			}
			return "", fmt.Errorf("parse xml: %w", err)
		}
		if cd, ok := tok.(xml.CharData); ok {
			if chunk := strings.TrimSpace(string(cd)); chunk != "" {
				chunks = append(chunks, chunk)
			}
		}
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("no text content")
	}
	return strings.Join(chunks, " "), nil
}

// HTMLText extracts the visible text of an HTML page, preferring the main
// content container, with all whitespace collapsed to single spaces.
// Block-level elements are treated as word boundaries; inline markup is
// not, so split text nodes inside a sentence stay joined.
func HTMLText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	container := doc.Find("main")
	if container.Length() == 0 {
		container = doc.Find("body")
	}

	var sb strings.Builder
	for _, node := range container.Nodes {
		collectText(node, &sb)
	}
	text := strings.Join(strings.Fields(sb.String()), " ")
	if text == "" {
		return "", fmt.Errorf("no visible text")
	}
	return text, nil
}

var blockElements = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {},
	"div": {}, "dl": {}, "dd": {}, "dt": {}, "fieldset": {}, "figcaption": {},
	"figure": {}, "footer": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {},
	"h5": {}, "h6": {}, "header": {}, "hr": {}, "li": {}, "main": {},
	"nav": {}, "ol": {}, "p": {}, "pre": {}, "section": {}, "table": {},
	"td": {}, "th": {}, "tr": {}, "ul": {},
}

// collectText writes the text nodes under n in document order, inserting
// a separator at block-element boundaries and skipping script and style
// subtrees.
func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
		if _, ok := blockElements[n.Data]; ok {
			sb.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode {
		if _, ok := blockElements[n.Data]; ok {
			sb.WriteByte('\n')
		}
	}
}

// StripClosingSection removes the trailing signature block and signature
// markers from ruling text.
func StripClosingSection(text string) string {
	text = closingSectionRe.ReplaceAllString(text, "")
	text = signedMarkerRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
