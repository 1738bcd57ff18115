package websearch

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/effective-security/toolgate/utils"
	"golang.org/x/net/html"
)

const (
	snippetMaxLen = 300
	// blockScanLimit bounds how much page text is kept for block
	// detection; block pages are short and carry their marker early.
	blockScanLimit = 64 * 1024

	noDescription = "No description available"
)

// blockMarkers are phrases the search source serves on anti-automation
// interstitials instead of results.
var blockMarkers = []string{
	"unusual traffic",
	"systems have detected",
	"captcha",
}

var spaceRE = regexp.MustCompile(`\s+`)

// parsePage scans the HTML document for result containers and extracts
// up to limit results in document order. Malformed or incomplete
// containers are skipped, never fatal; an empty result list is a valid
// outcome. The second return value reports whether the page carries a
// known blocking marker. parsePage performs no I/O.
func parsePage(r io.Reader, limit int) ([]Result, bool) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, false
	}

	p := &pageParser{
		limit: limit,
		seen:  make(map[string]bool),
	}
	p.walk(doc)

	return p.results, p.isBlocked()
}

type pageParser struct {
	limit   int
	results []Result
	seen    map[string]bool
	text    strings.Builder
}

func (p *pageParser) walk(n *html.Node) {
	if len(p.results) >= p.limit {
		return
	}

	switch n.Type {
	case html.TextNode:
		if p.text.Len() < blockScanLimit {
			p.text.WriteString(n.Data)
			p.text.WriteByte(' ')
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript":
			return
		case "a":
			if res, ok := extractResult(n); ok && !p.seen[res.URL] {
				p.seen[res.URL] = true
				p.results = append(p.results, res)
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c)
	}
}

func (p *pageParser) isBlocked() bool {
	text := strings.ToLower(p.text.String())
	for _, marker := range blockMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// extractResult interprets an anchor wrapping a heading as one search
// result: the heading is the title, the anchor target is the URL, and
// the enclosing container's remaining text is the snippet.
func extractResult(a *html.Node) (Result, bool) {
	href := attrVal(a, "href")
	resultURL := cleanResultURL(href)
	if resultURL == "" {
		return Result{}, false
	}

	h3 := findElement(a, "h3")
	if h3 == nil {
		return Result{}, false
	}
	title := utils.SanitizeText(collapseSpace(nodeText(h3)))
	if title == "" {
		return Result{}, false
	}

	return Result{
		Title:   title,
		Snippet: extractSnippet(a, title),
		URL:     resultURL,
	}, true
}

func extractSnippet(a *html.Node, title string) string {
	container := closestAncestor(a, "div")
	if container == nil {
		return noDescription
	}
	full := utils.SanitizeText(collapseSpace(nodeText(container)))
	if idx := strings.Index(full, title); idx != -1 {
		full = full[idx+len(title):]
	}
	full = strings.TrimSpace(full)
	if full == "" {
		return noDescription
	}
	return utils.Truncate(full, snippetMaxLen)
}

// cleanResultURL unwraps redirect links, drops internal navigation, and
// rejects anything that is not an absolute http(s) URL.
func cleanResultURL(href string) string {
	switch {
	case strings.HasPrefix(href, "/url?q="):
		raw := strings.TrimPrefix(href, "/url?q=")
		if i := strings.IndexByte(raw, '&'); i != -1 {
			raw = raw[:i]
		}
		if unescaped, err := url.QueryUnescape(raw); err == nil {
			href = unescaped
		} else {
			href = raw
		}
	case strings.HasPrefix(href, "/search"):
		return ""
	}
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return ""
	}
	return href
}

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func closestAncestor(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return p
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}
