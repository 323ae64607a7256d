package chapter

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	gistHost      = "gist.github.com"
	gistNumClass  = "blob-num"
	gistCodeClass = "blob-code"
	gistMetaClass = "gist-meta"
)

// reDocWrite matches the scripted HTML insertion calls a gist embed script
// is made of. Each argument is an escaped HTML fragment.
var reDocWrite = regexp.MustCompile(`document\.write\('(.+)'\)`)

// GistFactory is a Factory that materializes embedded GitHub gist scripts
// into plain preformatted code blocks before running the standard pipeline.
type GistFactory struct {
	*Factory
	host string
}

func NewGistFactory(client *http.Client, clean CleanFunc) *GistFactory {
	return &GistFactory{
		Factory: NewFactory(client, clean),
		host:    gistHost,
	}
}

func (g *GistFactory) FromURL(ctx context.Context, pageURL, title string) (*Chapter, error) {
	raw, err := g.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return g.FromString(raw, pageURL, title)
}

func (g *GistFactory) FromFile(name, pageURL, title string) (*Chapter, error) {
	raw, err := readSource(name)
	if err != nil {
		return nil, err
	}
	return g.FromString(raw, pageURL, title)
}

// FromString replaces every gist script tag with its rendered snippet, then
// hands the rewritten markup to the generic pipeline. A failed snippet fetch
// aborts the chapter; scripts from other hosts are left untouched.
func (g *GistFactory) FromString(raw, pageURL, title string) (*Chapter, error) {
	expanded, err := g.expand(raw)
	if err != nil {
		return nil, err
	}
	return g.Factory.FromString(expanded, pageURL, title)
}

func (g *GistFactory) expand(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("chapter: cannot parse markup: %w", err)
	}

	var expandErr error
	doc.Find("script[src]").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		src, _ := script.Attr("src")
		u, err := url.Parse(src)
		if err != nil || u.Host != g.host {
			return true
		}

		block, err := g.renderGist(src)
		if err != nil {
			expandErr = err
			return false
		}

		script.ReplaceWithHtml(block)
		return true
	})
	if expandErr != nil {
		return "", expandErr
	}

	return goquery.OuterHtml(doc.Selection)
}

// renderGist fetches the gist script (redirects enabled), reconstructs the
// HTML fragment it would inject, and renders its code table as a numbered
// preformatted block.
func (g *GistFactory) renderGist(gistURL string) (string, error) {
	resp, err := g.client.Get(gistURL)
	if err != nil {
		return "", &SourceError{URL: gistURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SourceError{URL: gistURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SourceError{URL: gistURL, Err: err}
	}

	var fragment strings.Builder
	for _, m := range reDocWrite.FindAllStringSubmatch(string(body), -1) {
		fragment.WriteString(decodeJSString(strings.ReplaceAll(m[1], `\/`, "/")))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment.String()))
	if err != nil {
		return "", fmt.Errorf("chapter: cannot parse gist fragment: %w", err)
	}

	type gistLine struct {
		num  string
		code string
	}
	var lines []gistLine
	last := ""

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		numCell := row.Find("td." + gistNumClass).First()
		codeCell := row.Find("td." + gistCodeClass).First()
		if numCell.Length() == 0 || codeCell.Length() == 0 {
			return
		}

		num, _ := numCell.Attr("data-line-number")
		lines = append(lines, gistLine{num: num, code: codeCell.Text()})
		last = num
	})

	// The last row's number width sets the padding for every line.
	width := len(last) + 1

	var b strings.Builder
	b.WriteString(`<pre style="font-size: 80%;">`)
	for _, line := range lines {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%*s: %s", width, line.num, html.EscapeString(line.code)))
	}
	b.WriteString("\n</pre>")

	// Author/repo attribution rides along when present; a structurally
	// unusable meta element is omitted, never fatal.
	if meta := doc.Find("div." + gistMetaClass).First(); meta.Length() > 0 {
		if h, err := goquery.OuterHtml(meta); err == nil {
			b.WriteString("\n")
			b.WriteString(h)
		}
	}

	return b.String(), nil
}

// decodeJSString decodes the escape sequences of a single-quoted JavaScript
// string literal body into literal text.
func decodeJSString(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			i++
			continue
		}

		switch next := s[i+1]; next {
		case 'n':
			b.WriteByte('\n')
			i += 2
		case 't':
			b.WriteByte('\t')
			i += 2
		case 'r':
			b.WriteByte('\r')
			i += 2
		case 'f':
			b.WriteByte('\f')
			i += 2
		case 'b':
			b.WriteByte('\b')
			i += 2
		case 'v':
			b.WriteByte('\v')
			i += 2
		case '0':
			b.WriteByte(0)
			i += 2
		case 'u':
			if i+6 <= len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+6], 16, 32); err == nil {
					b.WriteRune(rune(v))
					i += 6
					continue
				}
			}
			b.WriteByte(next)
			i += 2
		case 'x':
			if i+4 <= len(s) {
				if v, err := strconv.ParseUint(s[i+2:i+4], 16, 32); err == nil {
					b.WriteRune(rune(v))
					i += 4
					continue
				}
			}
			b.WriteByte(next)
			i += 2
		default:
			// \' \" \\ and any unrecognized escape keep the escaped char.
			b.WriteByte(next)
			i += 2
		}
	}

	return b.String()
}
