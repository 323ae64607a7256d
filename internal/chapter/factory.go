package chapter

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/larkvale/webtome/internal/sanitize"
	"github.com/larkvale/webtome/internal/util"
)

// DefaultTitle is used when no title is supplied and none can be inferred
// from the source markup.
const DefaultTitle = "Ebook Chapter"

// CleanFunc sanitizes raw markup before it is converted to XHTML. Callers
// may substitute their own policy; the default is sanitize.Clean.
type CleanFunc func(string) (string, error)

// Builder produces chapters from the three supported source kinds.
type Builder interface {
	FromURL(ctx context.Context, pageURL, title string) (*Chapter, error)
	FromFile(name, pageURL, title string) (*Chapter, error)
	FromString(raw, pageURL, title string) (*Chapter, error)
}

// Factory builds chapters through the sanitize → XHTML-convert →
// title-infer pipeline.
type Factory struct {
	client *http.Client
	clean  CleanFunc
}

func NewFactory(client *http.Client, clean CleanFunc) *Factory {
	if client == nil {
		client = defaultClient()
	}
	if clean == nil {
		clean = sanitize.Clean
	}
	return &Factory{client: client, clean: clean}
}

func defaultClient() *http.Client {
	c, err := util.NewClient(util.ClientOptions{
		Timeout:   30 * time.Second,
		UserAgent: util.PickUserAgent(""),
	})
	if err != nil {
		return http.DefaultClient
	}
	return c
}

// FromURL fetches pageURL (browser UA, redirects disabled) and feeds the
// response body through the string pipeline. Connection, TLS, and URL
// failures all surface as *SourceError.
func (f *Factory) FromURL(ctx context.Context, pageURL, title string) (*Chapter, error) {
	raw, err := f.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return f.FromString(raw, pageURL, title)
}

// FromFile reads name as UTF-8 text and feeds it through the string
// pipeline. pageURL may carry the page the file mirrors, or be empty.
func (f *Factory) FromFile(name, pageURL, title string) (*Chapter, error) {
	raw, err := readSource(name)
	if err != nil {
		return nil, err
	}
	return f.FromString(raw, pageURL, title)
}

// FromString is the shared terminal step: sanitize, convert to XHTML, infer
// a title when none was supplied, and construct the chapter.
func (f *Factory) FromString(raw, pageURL, title string) (*Chapter, error) {
	cleaned, err := f.clean(raw)
	if err != nil {
		return nil, err
	}
	content := sanitize.ToXHTML(cleaned)

	if title == "" {
		title = inferTitle(raw)
	}

	return New(content, title, pageURL)
}

// fetchPage issues the page GET with redirects disabled, so a redirect
// response is used as-is instead of being followed.
func (f *Factory) fetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &SourceError{URL: pageURL, Err: err}
	}

	client := &http.Client{
		Transport: f.client.Transport,
		Jar:       f.client.Jar,
		Timeout:   f.client.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", &SourceError{URL: pageURL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &SourceError{URL: pageURL, Err: err}
	}

	return string(body), nil
}

func readSource(name string) (string, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// inferTitle extracts the original markup's <title> text, falling back to
// DefaultTitle when absent or unparsable.
func inferTitle(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return DefaultTitle
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return DefaultTitle
	}
	return title
}
