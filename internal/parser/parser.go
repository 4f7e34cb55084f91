// Package parser turns stored raw HTML into ParsedDocuments.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hybrid-search/internal/crawler"
	"github.com/JakeFAU/hybrid-search/internal/document"
)

const defaultLanguage = "en"

// Parse extracts the title, h1-h3 headings, paragraph body, language,
// canonical URL and outbound links from body. Tokens come from the paragraph
// body only.
func Parse(meta document.RawMetadata, body []byte) (document.ParsedDocument, error) {
	base, err := url.Parse(meta.URL)
	if err != nil {
		return document.ParsedDocument{}, fmt.Errorf("parse url %q: %w", meta.URL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return document.ParsedDocument{}, fmt.Errorf("parse html %s: %w", meta.URL, err)
	}

	title := collapseSpace(doc.Find("title").First().Text())

	var headings []string
	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		if h := collapseSpace(sel.Text()); h != "" {
			headings = append(headings, h)
		}
	})

	var paragraphs []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if p := collapseSpace(sel.Text()); p != "" {
			paragraphs = append(paragraphs, p)
		}
	})
	text := strings.Join(paragraphs, " ")

	lang := defaultLanguage
	if v, ok := doc.Find("html").First().Attr("lang"); ok && strings.TrimSpace(v) != "" {
		lang = strings.TrimSpace(v)
	}

	canonical := meta.URL
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if ref, perr := url.Parse(strings.TrimSpace(href)); perr == nil && strings.TrimSpace(href) != "" {
			canonical = crawler.NormalizeURL(base.ResolveReference(ref))
		}
	}

	links, err := crawler.ExtractLinks(meta.URL, body)
	if err != nil {
		return document.ParsedDocument{}, fmt.Errorf("extract links %s: %w", meta.URL, err)
	}

	return document.ParsedDocument{
		URL:      meta.URL,
		Title:    title,
		Headings: headings,
		Body:     text,
		Tokens:   Tokenize(text),
		Metadata: document.Metadata{
			Language:      lang,
			CanonicalURL:  canonical,
			OutboundLinks: links,
			FetchTime:     meta.FetchTime,
			ContentHash:   meta.ContentHash,
		},
	}, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
