package sites

import (
	"fmt"
	"strings"

	"irdin-archive/pkg/urls"

	"github.com/PuerkitoBio/goquery"
)

// listingSelectors are tried in order on a catalog listing page; the first one
// that matches any link wins. The theme has shipped both markups.
var listingSelectors = []string{
	"h3.wd-entities-title a",
	".product a.product-image-link",
}

// ExtractListingURLs extracts product links from a catalog listing page.
// It returns an empty slice (not an error) for a page without products, which
// is how the end of pagination looks. Links outside the product markup never count.
func ExtractListingURLs(html, pageURL string) ([]urls.URL, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	baseURL := getBaseURL(doc, pageURL)
	for _, selector := range listingSelectors {
		if found := collectLinks(doc.Find(selector), baseURL); len(found) > 0 {
			return found, nil
		}
	}

	// No catalog markup means past the last page, whatever other links the page carries
	return []urls.URL{}, nil
}

// ListingPageURL returns the URL of listing page n; page 1 is the listing URL itself.
func ListingPageURL(listingURL string, n int) string {
	if n <= 1 {
		return listingURL
	}
	if !strings.HasSuffix(listingURL, "/") {
		listingURL += "/"
	}
	return fmt.Sprintf("%spage/%d/", listingURL, n)
}
