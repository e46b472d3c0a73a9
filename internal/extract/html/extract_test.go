package html

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html lang="en">
<head>
	<title>Fallback Title</title>
	<meta property="og:title" content="OG Title">
	<meta property="og:description" content="OG Description">
	<meta name="author" content="Jane Doe">
	<link rel="canonical" href="/canonical-page">
	<script type="application/ld+json">{"@type":"Article","headline":"Hi"}</script>
</head>
<body>
	<nav><a href="/nav-link">Nav</a></nav>
	<article>
		<h1>Article Heading</h1>
		<p>This is the main body paragraph with enough content to read.</p>
		<a href="https://example.org/other">Other site</a>
		<a href="#section">Skip anchor</a>
	</article>
	<div itemscope itemtype="https://schema.org/Person">
		<span itemprop="name">Jane Doe</span>
	</div>
</body>
</html>`

func TestExtract_MetadataPrefersOpenGraph(t *testing.T) {
	t.Parallel()

	e := New()
	result, err := e.Extract([]byte(samplePage), "https://example.com/article")
	require.NoError(t, err)

	require.Equal(t, "OG Title", result.Metadata.Title)
	require.Equal(t, "OG Description", result.Metadata.Description)
	require.Equal(t, "Jane Doe", result.Metadata.Author)
	require.Equal(t, "en", result.Metadata.Language)
	require.Equal(t, "https://example.com/canonical-page", result.Metadata.CanonicalURL)
}

func TestExtract_LinksResolvedAgainstBase_SkipsAnchors(t *testing.T) {
	t.Parallel()

	e := New()
	result, err := e.Extract([]byte(samplePage), "https://example.com/article")
	require.NoError(t, err)

	var hrefs []string
	for _, l := range result.Links {
		hrefs = append(hrefs, l.Href)
	}
	require.Contains(t, hrefs, "https://example.com/nav-link")
	require.Contains(t, hrefs, "https://example.org/other")
	require.NotContains(t, hrefs, "https://example.com/article#section")
}

func TestExtract_StructuredData_CollectsJSONLDAndMicrodata(t *testing.T) {
	t.Parallel()

	e := New()
	result, err := e.Extract([]byte(samplePage), "https://example.com/article")
	require.NoError(t, err)

	require.Len(t, result.StructuredData.JSONLD, 1)
	require.Equal(t, "Hi", result.StructuredData.JSONLD[0]["headline"])
	require.Contains(t, result.StructuredData.SchemaOrgTypes, "Article")
	require.Contains(t, result.StructuredData.SchemaOrgTypes, "https://schema.org/Person")
	require.Len(t, result.StructuredData.Microdata, 1)
}

func TestExtract_TextContainsBodyContent(t *testing.T) {
	t.Parallel()

	e := New()
	result, err := e.Extract([]byte(samplePage), "https://example.com/article")
	require.NoError(t, err)
	require.Contains(t, result.Text, "main body paragraph")
}

func TestExtract_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	e := New()
	_, err := e.Extract([]byte(samplePage), "://bad-base")
	require.Error(t, err)
}

func TestExtract_MalformedJSONLDIsDropped(t *testing.T) {
	t.Parallel()

	page := `<html><body><script type="application/ld+json">{not valid json}</script></body></html>`
	e := New()
	result, err := e.Extract([]byte(page), "https://example.com/")
	require.NoError(t, err)
	require.Empty(t, result.StructuredData.JSONLD)
}

func TestExtract_FallsBackToTitleWhenNoOpenGraph(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Plain Title</title></head><body><p>Body text</p></body></html>`
	e := New()
	result, err := e.Extract([]byte(page), "https://example.com/")
	require.NoError(t, err)
	require.Equal(t, "Plain Title", result.Metadata.Title)
}
