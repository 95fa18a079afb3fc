// Package rcw parses the listing and statute pages of the Revised Code of Washington site.
package rcw

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
)

// DefaultRootURL is the title index of the code.
const DefaultRootURL = "https://app.leg.wa.gov/RCW/default.aspx"

const (
	titleTableSelector = "table#ContentPlaceHolder1_dgSections"
	contentSelector    = "div#contentWrapper"
	notesMarker        = "NOTES:"
	maxChapterLabelLen = 10
)

// Parser implements crawler.PageParser for RCW markup.
type Parser struct {
	baseURL string
}

// New returns a Parser that resolves relative links against baseURL when a
// page carries no URL of its own.
func New(baseURL string) *Parser {
	if baseURL == "" {
		baseURL = DefaultRootURL
	}
	return &Parser{baseURL: baseURL}
}

// Links extracts the child links of a listing page in document order.
func (p *Parser) Links(kind crawler.PageKind, page crawler.Page) ([]crawler.Link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page.URL, err)
	}
	base := page.URL
	if base == "" {
		base = p.baseURL
	}
	switch kind {
	case crawler.KindTitleIndex:
		return titleLinks(doc, base)
	case crawler.KindChapterIndex:
		return chapterLinks(doc, base)
	case crawler.KindSectionIndex:
		return sectionLinks(doc, base)
	default:
		return nil, fmt.Errorf("unknown page kind %q", kind)
	}
}

func titleLinks(doc *goquery.Document, base string) ([]crawler.Link, error) {
	table := doc.Find(titleTableSelector).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrStructure, titleTableSelector)
	}
	var links []crawler.Link
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		a := row.Find("a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		label := strings.TrimSpace(a.Text())
		if !strings.Contains(a.Text(), "Title") && !strings.Contains(href, "Cite=") {
			return
		}
		if link, ok := resolve(base, label, href); ok {
			links = append(links, link)
		}
	})
	return links, nil
}

func chapterLinks(doc *goquery.Document, base string) ([]crawler.Link, error) {
	table, err := contentTable(doc)
	if err != nil {
		return nil, err
	}
	var links []crawler.Link
	table.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		label := strings.TrimSpace(a.Text())
		if !isChapterLink(label, href) {
			return
		}
		if link, ok := resolve(base, label, href); ok {
			links = append(links, link)
		}
	})
	return links, nil
}

// isChapterLink accepts labels shaped like "1.04" that point at a cite.
func isChapterLink(label, href string) bool {
	return strings.Contains(strings.ToLower(href), "cite=") &&
		strings.Count(label, ".") == 1 &&
		len(label) < maxChapterLabelLen &&
		!strings.Contains(strings.ToLower(label), "search")
}

func sectionLinks(doc *goquery.Document, base string) ([]crawler.Link, error) {
	table, err := contentTable(doc)
	if err != nil {
		return nil, err
	}
	var links []crawler.Link
	table.Find("a").Each(func(_ int, a *goquery.Selection) {
		if strings.TrimSpace(a.Text()) != "HTML" {
			return
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link, ok := resolve(base, "HTML", href)
		if !ok {
			return
		}
		if citation, err := crawler.CitationFromURL(link.URL); err == nil {
			link.Label = citation
		}
		links = append(links, link)
	})
	return links, nil
}

func contentTable(doc *goquery.Document) (*goquery.Selection, error) {
	wrapper := doc.Find(contentSelector).First()
	if wrapper.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrStructure, contentSelector)
	}
	table := wrapper.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: %s table", crawler.ErrStructure, contentSelector)
	}
	return table, nil
}

func resolve(base, label, href string) (crawler.Link, bool) {
	if strings.TrimSpace(href) == "" {
		return crawler.Link{}, false
	}
	abs, err := crawler.ResolveURL(base, href)
	if err != nil {
		return crawler.Link{}, false
	}
	return crawler.Link{Label: label, URL: abs}, true
}

// Text returns the statute body: the text of each direct child of the content
// wrapper up to the NOTES heading, one line per text node.
func (p *Parser) Text(page crawler.Page) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", page.URL, err)
	}
	wrapper := doc.Find(contentSelector).First()
	if wrapper.Length() == 0 {
		return "", fmt.Errorf("%w: %s", crawler.ErrStructure, contentSelector)
	}
	var parts []string
	wrapper.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if goquery.NodeName(child) == "h3" && strings.Contains(child.Text(), notesMarker) {
			return false
		}
		if text := nodeText(child.Get(0)); text != "" {
			parts = append(parts, text)
		}
		return true
	})
	return strings.Join(parts, "\n"), nil
}

// nodeText joins the trimmed, non-empty text nodes below n with newlines.
func nodeText(n *html.Node) string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(lines, "\n")
}
