package chapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gistScript mimics the embed payload served for a gist: a stylesheet line
// plus the escaped HTML fragment holding the code table.
const gistScript = `document.write('<link rel=\"stylesheet\" href=\"https:\/\/github.githubassets.com\/assets\/gist-embed.css\">')
document.write('<div class=\"gist\"><table class=\"highlight\"><tbody><tr><td class=\"blob-num\" data-line-number=\"10\"><\/td><td class=\"blob-code\">a<\/td><\/tr><tr><td class=\"blob-num\" data-line-number=\"11\"><\/td><td class=\"blob-code\">b<\/td><\/tr><tr><td class=\"blob-num\" data-line-number=\"12\"><\/td><td class=\"blob-code\">if x < 3:<\/td><\/tr><\/tbody><\/table><div class=\"gist-meta\"><a href=\"https:\/\/gist.github.com\/octocat\/abc\">view raw<\/a><\/div><\/div>')`

func gistTestFactory(t *testing.T, handler http.Handler) (*GistFactory, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	g := NewGistFactory(srv.Client(), nil)
	g.host = u.Host
	return g, srv
}

func TestGistExpansion(t *testing.T) {
	g, srv := gistTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(gistScript))
	}))

	page := `<html><head><title>Post</title></head><body>
<p>Intro</p>
<script src="` + srv.URL + `/octocat/abc.js"></script>
<p>Outro</p>
</body></html>`

	ch, err := g.FromString(page, "http://example.com/post", "")
	require.NoError(t, err)
	assert.Equal(t, "Post", ch.Title)

	// Width follows the widest line number plus one.
	assert.Contains(t, ch.Content, " 10: a")
	assert.Contains(t, ch.Content, " 11: b")
	assert.Contains(t, ch.Content, " 12: if x &lt; 3:")
	assert.Contains(t, ch.Content, `<pre style="font-size: 80%;">`)

	// Attribution block rides along; the stylesheet does not.
	assert.Contains(t, ch.Content, `class="gist-meta"`)
	assert.Contains(t, ch.Content, "view raw")
	assert.NotContains(t, ch.Content, "gist-embed.css")

	assert.Contains(t, ch.Content, "<p>Intro</p>")
	assert.Contains(t, ch.Content, "<p>Outro</p>")
	assert.NotContains(t, ch.Content, "<script")
}

func TestGistExpansionSkipsRowsMissingCells(t *testing.T) {
	script := `document.write('<table><tbody><tr><td class=\"blob-num\" data-line-number=\"1\"><\/td><td class=\"blob-code\">kept<\/td><\/tr><tr><td class=\"blob-code\">orphan<\/td><\/tr><\/tbody><\/table>')`
	g, srv := gistTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(script))
	}))

	page := `<html><body><script src="` + srv.URL + `/g.js"></script></body></html>`
	ch, err := g.FromString(page, "", "T")
	require.NoError(t, err)

	assert.Contains(t, ch.Content, " 1: kept")
	assert.NotContains(t, ch.Content, "orphan")
}

func TestGistExpansionIgnoresOtherHosts(t *testing.T) {
	g := NewGistFactory(http.DefaultClient, nil)
	g.host = "gist.example.test"

	page := `<html><body><p>x</p><script src="https://cdn.example.com/lib.js"></script></body></html>`
	expanded, err := g.expand(page)
	require.NoError(t, err)
	assert.Contains(t, expanded, "cdn.example.com/lib.js", "foreign scripts stay in place")
}

func TestGistFetchFailureAbortsChapter(t *testing.T) {
	g, srv := gistTestFactory(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	page := `<html><body><script src="` + srv.URL + `/gone.js"></script></body></html>`
	_, err := g.FromString(page, "", "T")

	var srcErr *SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Contains(t, srcErr.URL, "/gone.js")
}

func TestGistFromURL(t *testing.T) {
	mux := http.NewServeMux()
	g, srv := gistTestFactory(t, mux)
	mux.HandleFunc("/g.js", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(gistScript))
	})
	mux.HandleFunc("/post", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Remote</title></head><body><script src="` + srv.URL + `/g.js"></script></body></html>`))
	})

	ch, err := g.FromURL(context.Background(), srv.URL+"/post", "")
	require.NoError(t, err)
	assert.Equal(t, "Remote", ch.Title)
	assert.Contains(t, ch.Content, " 10: a")
}

func TestDecodeJSString(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`plain`, "plain"},
		{`a\'b`, "a'b"},
		{`a\"b`, `a"b`},
		{`a\\b`, `a\b`},
		{`line\nbreak`, "line\nbreak"},
		{`tab\there`, "tab\there"},
		{`<div>`, "<div>"},
		{`\u003cdiv\u003e`, "<div>"},
		{`\x41\x42`, "AB"},
		{`\q`, "q"},
		{`trailing\`, `trailing\`},
		{`\uZZZZ`, "uZZZZ"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, decodeJSString(c.in), c.in)
	}
}

func TestDecodeJSStringRoundTripFragment(t *testing.T) {
	in := `<table><tr><\/tr><\/table>`
	// The caller normalizes \/ before decoding, same as the expansion path.
	got := decodeJSString(strings.ReplaceAll(in, `\/`, "/"))
	assert.Equal(t, "<table><tr></tr></table>", got)
}
