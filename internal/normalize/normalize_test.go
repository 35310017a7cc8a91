package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgassen/tuchtrecht-harvester/internal/harvest"
)

func TestXMLText(t *testing.T) {
	t.Parallel()

	body := []byte(`<?xml version="1.0" encoding="utf-8"?>
<uitspraak>
  <kop>Beslissing van het Regionaal Tuchtcollege</kop>
  <tekst>De klacht is ongegrond verklaard.</tekst>
</uitspraak>`)

	text, err := XMLText(body)
	require.NoError(t, err)
	assert.Equal(t, "Beslissing van het Regionaal Tuchtcollege De klacht is ongegrond verklaard.", text)
}

func TestXMLTextToleratesTruncatedMarkup(t *testing.T) {
	t.Parallel()

	text, err := XMLText([]byte(`<uitspraak><tekst>gedeeltelijke inhoud</tekst><afgebro`))
	require.NoError(t, err)
	assert.Equal(t, "gedeeltelijke inhoud", text)
}

func TestXMLTextEmptyDocument(t *testing.T) {
	t.Parallel()

	_, err := XMLText([]byte(`<uitspraak></uitspraak>`))
	assert.Error(t, err)
}

func TestHTMLTextPrefersMainContainer(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body>
<nav>Home Zoeken Contact</nav>
<main><h1>Uitspraak</h1><p>Eerste   alinea.</p></main>
</body></html>`)

	text, err := HTMLText(body)
	require.NoError(t, err)
	assert.Equal(t, "Uitspraak Eerste alinea.", text)
}

func TestHTMLTextSeparatesAdjacentBlocks(t *testing.T) {
	t.Parallel()

	// Adjacent block elements carry no whitespace between their text
	// nodes; extraction must not glue "Uitspraak" onto "Eerste".
	body := []byte(`<html><body><main><h1>Uitspraak</h1><p>Eerste <em>alinea</em>.</p><p>Tweede alinea.</p></main></body></html>`)

	text, err := HTMLText(body)
	require.NoError(t, err)
	assert.Equal(t, "Uitspraak Eerste alinea. Tweede alinea.", text)
}

func TestHTMLTextSkipsScriptAndStyle(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><main><p>Zichtbaar.</p><script>var x = 1;</script><style>p{}</style></main></body></html>`)

	text, err := HTMLText(body)
	require.NoError(t, err)
	assert.Equal(t, "Zichtbaar.", text)
}

func TestHTMLTextFallsBackToBody(t *testing.T) {
	t.Parallel()

	text, err := HTMLText([]byte(`<html><body><p>Alleen een body.</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Alleen een body.", text)
}

func TestStripClosingSection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"signature block removed",
			"De klacht is gegrond. Aldus gegeven door de voorzitter en de secretaris.",
			"De klacht is gegrond.",
		},
		{
			"signed markers removed",
			"Uitspraak gedaan op 1 juli. w.g. De griffier",
			"Uitspraak gedaan op 1 juli. De griffier",
		},
		{
			"plain text untouched",
			"De klacht is ongegrond.",
			"De klacht is ongegrond.",
		},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StripClosingSection(tc.in), tc.name)
	}
}

func TestNormalizeAppliesQualityGate(t *testing.T) {
	t.Parallel()

	n := New(200)
	doc := harvest.Document{ID: "https://tuchtrecht.overheid.nl/x", ContentURL: "https://repository.overheid.nl/x.xml"}
	res := harvest.FetchResult{
		Body:        []byte(`<uitspraak><tekst>te kort</tekst></uitspraak>`),
		ContentType: "application/xml",
	}

	_, err := n.Normalize(doc, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, harvest.ErrLowQuality)
}

func TestNormalizeXMLDocument(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("De klachtonderdelen zijn ieder afzonderlijk beoordeeld. ", 6)
	body := `<?xml version="1.0"?><uitspraak><tekst>` + long +
		`Aldus gegeven door de voorzitter.</tekst></uitspraak>`
	doc := harvest.Document{ID: "https://tuchtrecht.overheid.nl/x", ContentURL: "https://repository.overheid.nl/x.xml"}

	text, err := New(200).Normalize(doc, harvest.FetchResult{Body: []byte(body), ContentType: "application/xml"})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long), text)
	assert.NotContains(t, text, "Aldus")
}

func TestNormalizeHTMLDocument(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Het college overweegt dat de klacht gegrond is. ", 6)
	body := `<html><body><main><p>` + long + `</p></main></body></html>`
	doc := harvest.Document{ID: "https://tuchtrecht.overheid.nl/y", ContentURL: "https://tuchtrecht.overheid.nl/y"}

	text, err := New(200).Normalize(doc, harvest.FetchResult{Body: []byte(body), ContentType: "text/html; charset=utf-8"})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long), text)
}

func TestNormalizeSniffsXMLWithoutContentType(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("De maatregel van waarschuwing wordt opgelegd. ", 6)
	body := `<?xml version="1.0"?><uitspraak><tekst>` + long + `</tekst></uitspraak>`
	doc := harvest.Document{ID: "https://tuchtrecht.overheid.nl/z", ContentURL: "https://tuchtrecht.overheid.nl/z"}

	text, err := New(200).Normalize(doc, harvest.FetchResult{Body: []byte(body)})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long), text)
}
