package activation

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// parseHTML walks a permissively parsed HTML reply. Two payloads are known:
// a hidden isAuthRequired input, and a property-list document embedded in a
// script block of type text/x-apple-plist. Anything else is an error page.
func (r *Response) parseHTML() error {
	doc, err := html.Parse(bytes.NewReader(r.RawContent))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHTMLParsing, err)
	}

	if findAuthRequiredInput(doc) {
		r.IsAuthRequired = true
		return nil
	}

	if script := findPlistScript(doc); script != nil {
		return r.parseEmbeddedPlist([]byte(nodeText(script)))
	}

	r.HasErrors = true
	return nil
}

func findAuthRequiredInput(n *html.Node) bool {
	if n.Type == html.ElementNode && n.Data == "input" {
		if attrValue(n, "name") == "isAuthRequired" && attrValue(n, "value") == "true" {
			return true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if findAuthRequiredInput(c) {
			return true
		}
	}
	return false
}

func findPlistScript(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "script" {
		if attrValue(n, "type") == "text/x-apple-plist" {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findPlistScript(c); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// nodeText returns the raw text content of a node. Script bodies are kept by
// the parser as a single text child, which here holds the plist source.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
