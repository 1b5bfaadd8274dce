package content

import (
	"fmt"
	"net/url"
	"strings"

	"irdin-archive/pkg/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/k3a/html2text"
)

// Product is everything a catalog detail page yields. Empty fields mean
// "not found on the page"; callers keep whatever value they already had.
type Product struct {
	Title       string
	SKU         string
	Description string
	Categories  string
	Tags        string
	Weight      string
	Dimensions  string
	MediaFormat string
	Authors     []string
	Tracks      []TrackLink
}

// TrackLink is an audio file advertised on a detail page
type TrackLink struct {
	Name string
	URL  string
}

// ParseProduct extracts catalog metadata from a product detail page.
// pageURL resolves relative links.
func ParseProduct(htmlContent, pageURL string) (*Product, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	p := &Product{
		Title:       extractTitle(doc),
		SKU:         collapse(doc.Find(".sku").First().Text()),
		Description: extractDescription(doc, htmlContent, pageURL),
		Categories:  joinTexts(doc.Find(".posted_in a")),
		Tags:        joinTexts(doc.Find(".tagged_as a")),
		Tracks:      extractTracks(doc, pageURL),
	}
	applyAttributes(doc, p)

	return p, nil
}

// ApplyTo copies every field found on the page onto src, leaving the rest untouched
func (p *Product) ApplyTo(src *domain.Source) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&src.Title, p.Title)
	set(&src.SKU, p.SKU)
	set(&src.Description, p.Description)
	set(&src.Categories, p.Categories)
	set(&src.Tags, p.Tags)
	set(&src.Weight, p.Weight)
	set(&src.Dimensions, p.Dimensions)
	set(&src.MediaFormat, p.MediaFormat)
}

// extractTitle tries the product heading, any heading, then Open Graph
func extractTitle(doc *goquery.Document) string {
	if title := collapse(doc.Find("h1.product_title").First().Text()); title != "" {
		return title
	}
	if title := collapse(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if title, exists := doc.Find("meta[property='og:title']").Attr("content"); exists {
		return collapse(title)
	}
	return ""
}

// extractDescription reads the description tab, skipping the paragraphs that only
// hold the audio player or the track list label. Falls back to the short description
// and finally to the readability excerpt.
func extractDescription(doc *goquery.Document, htmlContent, pageURL string) string {
	var paragraphs []string
	doc.Find("#tab-description p").Each(func(i int, p *goquery.Selection) {
		if p.Find("a[href$='.mp3'], .fap-single-track").Length() > 0 {
			return
		}
		text := collapse(p.Text())
		if text == "" || strings.EqualFold(text, "faixas:") {
			return
		}
		paragraphs = append(paragraphs, text)
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n")
	}

	if short, err := doc.Find(".woocommerce-product-details__short-description").First().Html(); err == nil && short != "" {
		if text := strings.TrimSpace(html2text.HTML2Text(short)); text != "" {
			return text
		}
	}

	var base *url.URL
	if parsed, err := url.Parse(pageURL); err == nil {
		base = parsed
	}
	article, err := readability.FromReader(strings.NewReader(htmlContent), base)
	if err == nil {
		return strings.TrimSpace(article.Excerpt)
	}
	return ""
}

// applyAttributes reads the "additional information" table
func applyAttributes(doc *goquery.Document, p *Product) {
	doc.Find("#tab-additional_information table tr, .woocommerce-product-attributes tr").Each(func(i int, row *goquery.Selection) {
		label := strings.ToLower(collapse(row.Find("th").First().Text()))
		cell := row.Find("td").First()
		if label == "" || cell.Length() == 0 {
			return
		}
		value := collapse(cell.Text())

		switch {
		case containsAny(label, "peso", "weight"):
			p.Weight = value
		case strings.Contains(label, "dimens"):
			p.Dimensions = value
		case containsAny(label, "mídia", "midia", "media", "formato"):
			p.MediaFormat = value
		case containsAny(label, "autor", "author"):
			p.Authors = appendUnique(p.Authors, authorNames(cell)...)
		}
	})
}

// authorNames prefers linked names and falls back to a comma separated cell
func authorNames(cell *goquery.Selection) []string {
	var names []string
	cell.Find("a").Each(func(i int, a *goquery.Selection) {
		if name := collapse(a.Text()); name != "" {
			names = append(names, name)
		}
	})
	if len(names) > 0 {
		return names
	}

	for _, part := range strings.Split(cell.Text(), ",") {
		if name := collapse(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// extractTracks reads the audio player entries; the download buttons are only
// consulted when the page has no player.
func extractTracks(doc *goquery.Document, pageURL string) []TrackLink {
	seen := make(map[string]bool)
	var tracks []TrackLink
	add := func(href, name string) {
		href = resolve(href, pageURL)
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		if name == "" {
			name = domain.FilenameFromURL(href)
		}
		tracks = append(tracks, TrackLink{Name: name, URL: href})
	}

	doc.Find("span.fap-single-track[data-href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("data-href")
		title, _ := s.Attr("data-title")
		add(href, collapse(title))
	})
	if len(tracks) > 0 {
		return tracks
	}

	doc.Find("a.baixar[href$='.mp3']").Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		label := a.NextFiltered("span.textobaixar")
		if label.Length() == 0 {
			label = a.Parent().Find("span.textobaixar").First()
		}
		add(href, collapse(label.Text()))
	})
	return tracks
}

func resolve(href, pageURL string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() || pageURL == "" {
		return ref.String()
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func joinTexts(sel *goquery.Selection) string {
	var parts []string
	sel.Each(func(i int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, ", ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, existing := range dst {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
