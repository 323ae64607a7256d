// Package sanitize provides the baseline markup cleaning and HTML-to-XHTML
// conversion used by the chapter pipeline. Both steps are injectable at the
// factory level; this package is the default policy.
package sanitize

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// allowedTags is the element whitelist for ebook content. Elements outside
// it are unwrapped (children kept) unless listed in droppedTags.
var allowedTags = map[string]bool{
	"a": true, "abbr": true, "address": true, "article": true, "aside": true,
	"b": true, "blockquote": true, "br": true, "caption": true, "cite": true,
	"code": true, "col": true, "colgroup": true, "dd": true, "del": true,
	"dfn": true, "div": true, "dl": true, "dt": true, "em": true,
	"figcaption": true, "figure": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "i": true, "img": true, "ins": true,
	"kbd": true, "li": true, "main": true, "mark": true, "nav": true,
	"ol": true, "p": true, "pre": true, "q": true, "rp": true, "rt": true,
	"ruby": true, "s": true, "samp": true, "section": true, "small": true,
	"span": true, "strong": true, "sub": true, "sup": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"time": true, "tr": true, "u": true, "ul": true, "var": true, "wbr": true,
}

// droppedTags are removed together with their content.
var droppedTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "frame": true,
	"frameset": true, "object": true, "embed": true, "applet": true,
	"form": true, "input": true, "button": true, "select": true,
	"option": true, "textarea": true, "label": true, "noscript": true,
	"canvas": true, "audio": true, "video": true, "source": true,
	"track": true, "map": true, "area": true, "meta": true, "link": true,
	"base": true, "template": true,
}

var allowedAttrs = map[string]bool{
	"id": true, "class": true, "style": true, "title": true, "lang": true,
	"dir": true, "href": true, "src": true, "alt": true, "width": true,
	"height": true, "colspan": true, "rowspan": true, "datetime": true,
	"cite": true,
}

// voidElements must be self-closing in XHTML.
var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Wbr: true,
}

// Clean strips scripts, styles, comments, non-whitelisted elements, and
// unsafe attributes from raw markup, returning the cleaned body content.
func Clean(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(stripInvalidXMLChars(raw)))
	if err != nil {
		return "", fmt.Errorf("sanitize: cannot parse markup: %w", err)
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		return "", fmt.Errorf("sanitize: markup has no body")
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		renderClean(&buf, c)
	}

	return buf.String(), nil
}

// renderClean renders one node applying the whitelist: dropped elements
// vanish with their content, unknown elements are unwrapped.
func renderClean(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(html.EscapeString(n.Data))

	case html.ElementNode:
		if droppedTags[n.Data] {
			return
		}
		if !allowedTags[n.Data] {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				renderClean(buf, c)
			}
			return
		}

		buf.WriteByte('<')
		buf.WriteString(n.Data)
		for _, a := range n.Attr {
			if !allowedAttrs[a.Key] {
				continue
			}
			fmt.Fprintf(buf, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
		}
		if voidElements[n.DataAtom] && n.FirstChild == nil {
			buf.WriteString("/>")
			return
		}
		buf.WriteByte('>')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderClean(buf, c)
		}
		buf.WriteString("</")
		buf.WriteString(n.Data)
		buf.WriteByte('>')
	}
	// Comments, doctypes, and anything else are dropped.
}

// ToXHTML converts cleaned markup into a complete well-formed XHTML
// document: doctype, html element with the XHTML namespace, and the content
// re-rendered with escaped text and self-closed void elements.
func ToXHTML(cleaned string) string {
	doc, err := html.Parse(strings.NewReader(cleaned))
	if err != nil {
		return cleaned
	}

	var body bytes.Buffer
	if b := findElement(doc, atom.Body); b != nil {
		for c := b.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(&body, c)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n")
	buf.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head></head><body>`)
	buf.Write(body.Bytes())
	buf.WriteString("</body></html>")

	return buf.String()
}

// renderXHTML renders a node tree in XHTML form.
func renderXHTML(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(html.EscapeString(n.Data))
	case html.ElementNode:
		buf.WriteByte('<')
		buf.WriteString(n.Data)
		for _, a := range n.Attr {
			fmt.Fprintf(buf, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
		}
		if voidElements[n.DataAtom] && n.FirstChild == nil {
			buf.WriteString("/>")
			return
		}
		buf.WriteByte('>')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderXHTML(buf, c)
		}
		buf.WriteString("</")
		buf.WriteString(n.Data)
		buf.WriteByte('>')
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// stripInvalidXMLChars removes characters not allowed in XML 1.0 content.
func stripInvalidXMLChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0x9 || r == 0xA || r == 0xD ||
			(r >= 0x20 && r <= 0xD7FF) ||
			(r >= 0xE000 && r <= 0xFFFD) ||
			(r >= 0x10000 && r <= 0x10FFFF) {
			return r
		}
		return -1
	}, s)
}
