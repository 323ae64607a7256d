package chapter

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes carries the PNG signature so sniffing classifies it.
var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}

func TestNewValidatesInput(t *testing.T) {
	_, err := New("<p>hi</p>", "", "")
	assert.ErrorIs(t, err, ErrEmptyTitle)

	_, err = New("", "Title", "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	ch, err := New("<p>hi</p>", "Title", "")
	require.NoError(t, err)
	assert.Equal(t, "Title", ch.Title)
	assert.Equal(t, "<p>hi</p>", ch.Content)
}

func TestNewEscapesTitle(t *testing.T) {
	ch, err := New("<p>x</p>", `Tom & "Jerry" <3`, "")
	require.NoError(t, err)
	assert.Equal(t, "Tom &amp; &#34;Jerry&#34; &lt;3", ch.HTMLTitle)
}

func TestURLAccessor(t *testing.T) {
	ch, err := New("<p>x</p>", "T", "")
	require.NoError(t, err)
	_, err = ch.URL()
	assert.ErrorIs(t, err, ErrNoURL)

	ch, err = New("<p>x</p>", "T", "http://example.com/page")
	require.NoError(t, err)
	u, err := ch.URL()
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/page", u)
}

func TestWriteRejectsWrongExtension(t *testing.T) {
	ch, err := New("<p>x</p>", "T", "")
	require.NoError(t, err)

	bad := filepath.Join(t.TempDir(), "chapter.html")
	assert.ErrorIs(t, ch.Write(bad), ErrBadExtension)
	_, statErr := os.Stat(bad)
	assert.True(t, os.IsNotExist(statErr), "no file may be created for a rejected name")
}

func TestWriteRoundTrip(t *testing.T) {
	ch, err := New("<p>héllo</p>", "T", "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "chapter.xhtml")
	require.NoError(t, ch.Write(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ch.Content, string(b))
}

func TestRewriteImagesRequiresImagesDir(t *testing.T) {
	ch, err := New("<p>x</p>", "T", "")
	require.NoError(t, err)

	_, err = ch.RewriteImages(NewImageResolver(nil), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "images subdirectory")
}

func bookDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "images"), 0755))
	return dir
}

func TestRewriteImagesLocalFile(t *testing.T) {
	// No extension on the source file, so the type must be sniffed.
	src := filepath.Join(t.TempDir(), "picture")
	require.NoError(t, os.WriteFile(src, pngBytes, 0644))

	ch, err := New(`<html><body><p>x</p><img src="`+src+`"/></body></html>`, "T", "")
	require.NoError(t, err)

	dir := bookDir(t)
	stats, err := ch.RewriteImages(NewImageResolver(nil), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)
	assert.Equal(t, 0, stats.Dropped)
	assert.Equal(t, int64(len(pngBytes)), stats.Bytes)

	saved, err := filepath.Glob(filepath.Join(dir, "images", "*.png"))
	require.NoError(t, err)
	require.Len(t, saved, 1)

	copied, err := os.ReadFile(saved[0])
	require.NoError(t, err)
	assert.Equal(t, pngBytes, copied)

	assert.Contains(t, ch.Content, `src="images/`+strings.TrimSuffix(filepath.Base(saved[0]), ".png")+`.png"`)
	assert.NotContains(t, ch.Content, src)
}

func TestRewriteImagesDropsUnreachable(t *testing.T) {
	ch, err := New(`<html><body><img src="http://127.0.0.1:1/gone.png"/><p>keep</p></body></html>`, "T", "")
	require.NoError(t, err)

	stats, err := ch.RewriteImages(NewImageResolver(nil), bookDir(t))
	require.NoError(t, err, "a broken image must not fail the chapter")
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 0, stats.Saved)
	assert.NotContains(t, ch.Content, "127.0.0.1")
	assert.Contains(t, ch.Content, "<p>keep</p>")
}

func TestRewriteImagesDropsRelativeWithoutBase(t *testing.T) {
	ch, err := New(`<html><body><img src="assets/pic.png"/></body></html>`, "T", "")
	require.NoError(t, err)

	stats, err := ch.RewriteImages(NewImageResolver(nil), bookDir(t))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dropped)
	assert.NotContains(t, ch.Content, "assets/pic.png")
}

func TestRewriteImagesResolvesAgainstBaseURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(pngBytes)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ch, err := New(`<html><body><img src="/img.png"/></body></html>`, "T", srv.URL+"/article")
	require.NoError(t, err)

	dir := bookDir(t)
	stats, err := ch.RewriteImages(NewImageResolver(srv.Client()), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)

	saved, err := filepath.Glob(filepath.Join(dir, "images", "*.png"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestRewriteImagesDeduplicatesReferences(t *testing.T) {
	src := filepath.Join(t.TempDir(), "twice")
	require.NoError(t, os.WriteFile(src, pngBytes, 0644))

	ch, err := New(`<html><body><img src="`+src+`"/><img src="`+src+`"/></body></html>`, "T", "")
	require.NoError(t, err)

	dir := bookDir(t)
	stats, err := ch.RewriteImages(NewImageResolver(nil), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)

	saved, err := filepath.Glob(filepath.Join(dir, "images", "*"))
	require.NoError(t, err)
	assert.Len(t, saved, 1)
	assert.Equal(t, 2, strings.Count(ch.Content, `src="images/`))
}

func TestRewriteImagesNormalizesLineBreaks(t *testing.T) {
	ch, err := New("<html><body><p>a<br>b</p></body></html>", "T", "")
	require.NoError(t, err)

	_, err = ch.RewriteImages(NewImageResolver(nil), bookDir(t))
	require.NoError(t, err)
	assert.Contains(t, ch.Content, "<br/>")
	assert.NotContains(t, ch.Content, "<br>")
}
