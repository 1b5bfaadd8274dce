package sites

import (
	"net/url"
	"strings"

	"irdin-archive/pkg/urls"

	"github.com/PuerkitoBio/goquery"
)

// collectLinks turns every usable anchor of a selection into a URL, deduplicated
func collectLinks(links *goquery.Selection, baseURL string) []urls.URL {
	var result []urls.URL
	seenURLs := make(map[string]bool)
	links.Each(func(i int, link *goquery.Selection) {
		if u := extractLink(link, baseURL, seenURLs); u != nil {
			result = append(result, *u)
		}
	})
	return result
}

// getBaseURL picks the URL relative links resolve against: <base href>, then the page URL
func getBaseURL(doc *goquery.Document, pageURL string) string {
	if baseHref, exists := doc.Find("base").First().Attr("href"); exists && baseHref != "" {
		return normalizeURL(baseHref, pageURL)
	}
	return pageURL
}

// extractLink extracts a URL from a link element if it's valid and not seen before
func extractLink(link *goquery.Selection, baseURL string, seenURLs map[string]bool) *urls.URL {
	href, exists := link.Attr("href")
	if !exists || href == "" {
		return nil
	}

	// Skip anchors, javascript, mailto, etc.
	if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return nil
	}

	normalizedHref := normalizeURL(href, baseURL)
	if normalizedHref == "" || seenURLs[normalizedHref] {
		return nil
	}
	seenURLs[normalizedHref] = true

	title := strings.TrimSpace(link.Text())
	if title == "" {
		title, _ = link.Attr("title")
		title = strings.TrimSpace(title)
	}

	return &urls.URL{
		Location: normalizedHref,
		Title:    title,
	}
}

// normalizeURL resolves href against baseURL and drops the fragment
func normalizeURL(href, baseURL string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	parsed.Fragment = ""

	if parsed.IsAbs() || baseURL == "" {
		return parsed.String()
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return parsed.String()
	}
	resolved := base.ResolveReference(parsed)
	resolved.Fragment = ""
	return resolved.String()
}
