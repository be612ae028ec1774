package web_extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/mohammad-safakhou/pagechat/internal/helpers"
	"github.com/mohammad-safakhou/pagechat/models"
)

// Readability extracts the main article with go-readability.
type Readability struct{}

func (Readability) Name() string { return "readability" }

func (Readability) Extract(page models.Page) (string, string, error) {
	article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL(page))
	if err != nil {
		return "", "", fmt.Errorf("readability: %w", err)
	}
	return article.TextContent, helpers.PlainText(article.Title), nil
}

// Markdown selects the main content area and converts it to markdown.
type Markdown struct {
	converter *md.Converter
}

func NewMarkdown() *Markdown {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Markdown{converter: converter}
}

func (*Markdown) Name() string { return "markdown" }

func (m *Markdown) Extract(page models.Page) (string, string, error) {
	doc, err := html.Parse(strings.NewReader(page.HTML))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title := documentTitle(doc)
	out, err := m.converter.ConvertString(renderNode(mainContent(doc)))
	if err != nil {
		return "", "", fmt.Errorf("convert markdown: %w", err)
	}
	out = excessiveLinesRe.ReplaceAllString(out, "\n\n")
	if title == "" {
		title = markdownTitle(out)
	}
	return strings.TrimSpace(out), title, nil
}

// RawText joins every visible text node of the document.
type RawText struct{}

func (RawText) Name() string { return "rawtext" }

func (RawText) Extract(page models.Page) (string, string, error) {
	doc, err := html.Parse(strings.NewReader(page.HTML))
	if err != nil {
		return helpers.PlainText(page.HTML), "", nil
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && invisibleTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), documentTitle(doc), nil
}

var (
	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

	invisibleTags = map[string]bool{
		"head": true, "script": true, "style": true, "noscript": true, "template": true,
	}

	boilerplateTags = map[string]bool{
		"nav": true, "header": true, "footer": true, "aside": true, "script": true,
		"style": true, "noscript": true, "template": true, "iframe": true, "object": true,
		"embed": true, "form": true, "button": true,
	}

	boilerplateClasses = map[string]bool{
		"nav": true, "navbar": true, "navigation": true, "sidebar": true, "menu": true,
		"toc": true, "footer": true, "header": true, "ad": true, "advertisement": true,
		"social": true, "share": true, "comments": true, "related": true, "breadcrumb": true,
	}
)

func pageURL(page models.Page) *url.URL {
	raw := page.FinalURL
	if raw == "" {
		raw = page.URL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// mainContent returns main, article or [role=main] if present, else the body with
// navigation and other boilerplate removed.
func mainContent(doc *html.Node) *html.Node {
	for _, match := range []func(*html.Node) bool{
		isTag("main"),
		isTag("article"),
		func(n *html.Node) bool { return attr(n, "role") == "main" },
	} {
		if n := findElement(doc, match); n != nil {
			return n
		}
	}
	prune(doc)
	if body := findElement(doc, isTag("body")); body != nil {
		return body
	}
	return doc
}

func isTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isBoilerplate(n *html.Node) bool {
	if boilerplateTags[n.Data] {
		return true
	}
	for _, class := range strings.Fields(strings.ToLower(attr(n, "class"))) {
		if boilerplateClasses[class] {
			return true
		}
	}
	return false
}

func prune(n *html.Node) {
	var drop []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBoilerplate(c) {
			drop = append(drop, c)
			continue
		}
		prune(c)
	}
	for _, c := range drop {
		n.RemoveChild(c)
	}
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

func documentTitle(doc *html.Node) string {
	n := findElement(doc, isTag("title"))
	if n == nil || n.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(n.FirstChild.Data)
}

func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(line); strings.HasPrefix(t, "# ") {
			return strings.TrimSpace(t[2:])
		}
	}
	return ""
}
