package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the absolute http(s) and root-relative links in body,
// resolved against base, normalized and deduplicated.
func ExtractLinks(base string, body []byte) ([]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(href, "http") && !strings.HasPrefix(href, "/") {
			return
		}
		ref, perr := url.Parse(href)
		if perr != nil {
			return
		}
		resolved := baseURL.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Host == "" {
			return
		}
		seen[NormalizeURL(resolved)] = struct{}{}
	})
	out := make([]string, 0, len(seen))
	for link := range seen {
		out = append(out, link)
	}
	sort.Strings(out)
	return out, nil
}

// NormalizeURL lowercases the scheme and host, removes default ports and drops the fragment.
func NormalizeURL(u *url.URL) string {
	clone := *u
	clone.Scheme = strings.ToLower(clone.Scheme)
	clone.Host = strings.ToLower(clone.Host)
	if clone.Scheme == "http" {
		clone.Host = strings.TrimSuffix(clone.Host, ":80")
	}
	if clone.Scheme == "https" {
		clone.Host = strings.TrimSuffix(clone.Host, ":443")
	}
	clone.Fragment = ""
	clone.RawFragment = ""
	return clone.String()
}

// isHTML reports whether a Content-Type header denotes HTML.
func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
