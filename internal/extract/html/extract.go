// Package html implements the ContentExtractor described in spec §4.2:
// HTML bytes plus a base URL in, {text, metadata, links, structured_data}
// out. Grounded on vdelacou's extractor.go (readability + goquery +
// bluemonday) and beeper-ai-bridge's linkpreview.go (OpenGraph priority
// tier for metadata).
package html

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/r3co87/iris/internal/model"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Extractor holds the sanitizer policy reused across calls.
type Extractor struct {
	sanitizer *bluemonday.Policy
}

// New builds an Extractor with a strict text sanitizer, matching the
// teacher's bluemonday.StrictPolicy() use for plain-text output.
func New() *Extractor {
	return &Extractor{sanitizer: bluemonday.StrictPolicy()}
}

// Result is the ContentExtractor's output shape.
type Result struct {
	Text           string
	Metadata       model.Metadata
	Links          []model.Link
	StructuredData model.StructuredData
}

// Extract parses htmlBytes and builds the full Result relative to baseURL.
func (e *Extractor) Extract(htmlBytes []byte, baseURL string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(htmlBytes)))
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse base url: %w", err)
	}

	og := opengraph.NewOpenGraph()
	_ = og.ProcessHTML(strings.NewReader(string(htmlBytes)))

	return Result{
		Text:           e.extractText(doc, htmlBytes),
		Metadata:       e.extractMetadata(doc, og, base),
		Links:          extractLinks(doc, base),
		StructuredData: extractStructuredData(doc),
	}, nil
}

// extractText strips boilerplate via go-readability, falling back to a
// whole-body text dump (script/style/nav/header/footer stripped) when
// readability can't find an article body.
func (e *Extractor) extractText(doc *goquery.Document, htmlBytes []byte) string {
	if article, err := readability.FromReader(strings.NewReader(string(htmlBytes)), nil); err == nil && article.TextContent != "" {
		return e.sanitizer.Sanitize(collapseParagraphs(article.TextContent))
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, nav, header, footer, aside").Remove()
	text := collapseParagraphs(body.Text())
	return e.sanitizer.Sanitize(text)
}

// collapseParagraphs trims each line and collapses intra-line whitespace
// while preserving the paragraph breaks the spec asks for.
func collapseParagraphs(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := whitespaceRun.ReplaceAllString(strings.TrimSpace(line), " ")
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n\n")
}

// extractMetadata resolves each field in the spec's priority order:
// OpenGraph, Twitter Cards, standard <meta>, <title>/<h1>, canonical/lang.
func (e *Extractor) extractMetadata(doc *goquery.Document, og *opengraph.OpenGraph, base *url.URL) model.Metadata {
	meta := model.Metadata{}

	meta.Title = firstNonEmpty(
		og.Title,
		metaContent(doc, "twitter:title"),
		metaContent(doc, "title"),
		firstText(doc, "title"),
		firstText(doc, "h1"),
	)
	meta.Description = firstNonEmpty(
		og.Description,
		metaContent(doc, "twitter:description"),
		metaContent(doc, "description"),
	)
	meta.CanonicalURL = resolveHref(base, firstNonEmpty(og.URL, linkHref(doc, "canonical")))
	meta.Language = firstNonEmpty(og.Locale, htmlLang(doc))
	meta.Author = metaContent(doc, "author")
	meta.PublishedTime = metaContent(doc, "article:published_time")

	return meta
}

// extractLinks resolves every <a href> against base, preserving document
// order and duplicates, with collapsed visible text and rel attributes.
func extractLinks(doc *goquery.Document, base *url.URL) []model.Link {
	var links []model.Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := resolveHref(base, href)
		if resolved == "" {
			return
		}
		text := whitespaceRun.ReplaceAllString(strings.TrimSpace(s.Text()), " ")
		rel, _ := s.Attr("rel")
		links = append(links, model.Link{Href: resolved, Text: text, Rel: rel})
	})
	return links
}

func resolveHref(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// extractStructuredData collects every application/ld+json payload (dropping
// malformed entries) and flattens Schema.org microdata into nested maps.
func extractStructuredData(doc *goquery.Document) model.StructuredData {
	sd := model.StructuredData{}
	typeSet := map[string]struct{}{}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s.Text()), &parsed); err != nil {
			return
		}
		sd.JSONLD = append(sd.JSONLD, parsed)
		if t, ok := parsed["@type"].(string); ok && t != "" {
			typeSet[t] = struct{}{}
		}
	})

	doc.Find("[itemscope][itemtype]").Each(func(_ int, s *goquery.Selection) {
		itemType, _ := s.Attr("itemtype")
		item := map[string]any{"@type": itemType}
		s.Find("[itemprop]").Each(func(_ int, prop *goquery.Selection) {
			name, _ := prop.Attr("itemprop")
			if name == "" {
				return
			}
			item[name] = propValue(prop)
		})
		sd.Microdata = append(sd.Microdata, item)
		if itemType != "" {
			typeSet[itemType] = struct{}{}
		}
	})

	for t := range typeSet {
		sd.SchemaOrgTypes = append(sd.SchemaOrgTypes, t)
	}
	return sd
}

func propValue(s *goquery.Selection) string {
	if content, ok := s.Attr("content"); ok {
		return content
	}
	if href, ok := s.Attr("href"); ok {
		return href
	}
	return strings.TrimSpace(s.Text())
}

func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find(fmt.Sprintf(`meta[name="%s"], meta[property="%s"]`, name, name)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, ok := s.Attr("content")
		if ok && v != "" {
			content = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return content
}

func linkHref(doc *goquery.Document, rel string) string {
	href, _ := doc.Find(fmt.Sprintf(`link[rel="%s"]`, rel)).First().Attr("href")
	return href
}

func htmlLang(doc *goquery.Document) string {
	lang, _ := doc.Find("html").First().Attr("lang")
	return lang
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
