package audit

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractSignals parses one HTML document and derives the on-page SEO
// facts plus the same-host links the worker may follow. Links are
// returned absolute, fragment-stripped, and deduplicated in document
// order.
func ExtractSignals(pageURL string, body []byte) (PageSignals, []string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return PageSignals{}, nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return PageSignals{}, nil, fmt.Errorf("parse html: %w", err)
	}

	var sig PageSignals

	sig.Title = strings.TrimSpace(doc.Find("head title").First().Text())
	sig.TitleLength = len([]rune(sig.Title))

	if desc, ok := doc.Find(`head meta[name="description"]`).First().Attr("content"); ok {
		sig.MetaDescription = strings.TrimSpace(desc)
	}

	sig.H1Count = doc.Find("h1").Length()

	if canonical, ok := doc.Find(`head link[rel="canonical"]`).First().Attr("href"); ok {
		if abs, err := base.Parse(strings.TrimSpace(canonical)); err == nil {
			sig.Canonical = abs.String()
		}
	}

	doc.Find(`head meta[name="robots"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content, _ := s.Attr("content")
		if strings.Contains(strings.ToLower(content), "noindex") {
			sig.Noindex = true
			return false
		}
		return true
	})

	bodySel := doc.Find("body").Clone()
	bodySel.Find("script, style, noscript").Remove()
	sig.WordCount = len(strings.Fields(bodySel.Text()))

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			sig.ImagesMissingAlt++
		}
	})

	seen := make(map[string]struct{})
	var internal []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}
		abs, err := base.Parse(href)
		if err != nil || (abs.Scheme != "http" && abs.Scheme != "https") {
			return
		}
		abs.Fragment = ""
		if sameHost(base, abs) {
			sig.InternalLinks++
			key := abs.String()
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				internal = append(internal, key)
			}
		} else {
			sig.ExternalLinks++
		}
	})

	return sig, internal, nil
}

// sameHost treats "www.example.com" and "example.com" as one site,
// matching how the audit scopes its crawl.
func sameHost(a, b *url.URL) bool {
	return stripWWW(a.Hostname()) == stripWWW(b.Hostname())
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
