package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/babelfeed/internal/fetch"
)

// ImageFinder returns the preview image of a page, or "" when it has none.
type ImageFinder interface {
	FindImage(ctx context.Context, pageURL string) (string, error)
}

// PageImages reads og:image / twitter:image from the item page.
type PageImages struct {
	Fetcher *fetch.Fetcher
}

var imageSelectors = []string{
	`meta[property="og:image"]`,
	`meta[property="og:image:url"]`,
	`meta[name="twitter:image"]`,
	`meta[property="twitter:image"]`,
	`link[rel="image_src"]`,
}

// FindImage fetches pageURL and returns the first absolute http(s) image
// declared in its head.
func (p *PageImages) FindImage(ctx context.Context, pageURL string) (string, error) {
	res, err := p.Fetcher.Fetch(ctx, pageURL, "", "")
	if err != nil {
		return "", err
	}
	if res.ContentType != "" && !strings.Contains(res.ContentType, "html") {
		return "", fmt.Errorf("pipeline: %s is %s, not html", pageURL, res.ContentType)
	}
	return imageFromHTML(res.Body, pageURL)
}

func imageFromHTML(body []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("pipeline: parse %s: %w", pageURL, err)
	}
	base, _ := url.Parse(pageURL)
	for _, sel := range imageSelectors {
		attr := "content"
		if strings.HasPrefix(sel, "link") {
			attr = "href"
		}
		v, ok := doc.Find(sel).First().Attr(attr)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme == "http" || u.Scheme == "https" {
			return u.String(), nil
		}
	}
	return "", nil
}
