// Package extract turns rendered HTML into clean text for the retrieval
// pipeline.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// contentSelectors are tried in order to find the main content container.
var contentSelectors = []string{
	"main", "article", "[role=main]", "#content", "#main-content",
	".content", ".post-content", ".entry-content",
}

// strippedSelectors are removed from the document before text extraction.
var strippedSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "header", "footer", "aside", "form",
}

// Title extracts the page title: <title> first, then the leading <h1>, then
// the og:title meta tag.
func Title(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if title, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		return strings.TrimSpace(title)
	}
	return ""
}

// Text extracts the main body text. It strips navigation, script and style
// elements, prefers a recognized content container, and falls back to a
// readability pass when no container matches.
func Text(htmlContent, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find(strings.Join(strippedSelectors, ", ")).Remove()

	for _, selector := range contentSelectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		if text := collapseWhitespace(container.Text()); text != "" {
			return text, nil
		}
	}

	// No content container; let readability score the DOM instead.
	if text := readableText(htmlContent, pageURL); text != "" {
		return text, nil
	}

	return collapseWhitespace(doc.Find("body").Text()), nil
}

func readableText(htmlContent, pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}
	article, err := readability.FromReader(strings.NewReader(htmlContent), parsed)
	if err != nil {
		return ""
	}
	return collapseWhitespace(article.TextContent)
}

// Links returns the href of every anchor in the document, resolved against
// base. Used when a fetcher cannot extract links itself.
func Links(htmlContent, base string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if baseURL != nil {
			if resolved, err := baseURL.Parse(href); err == nil {
				href = resolved.String()
			}
		}
		links = append(links, href)
	})
	return links
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
