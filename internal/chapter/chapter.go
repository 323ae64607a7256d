package chapter

import (
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// Extension is the file extension every persisted chapter must carry.
const Extension = ".xhtml"

// Chapter is one unit of ebook content: a validated title, strict XHTML
// content, and an optional source URL. Content is mutated exactly once, by
// RewriteImages.
type Chapter struct {
	Title   string
	Content string

	// HTMLTitle is Title with special characters escaped for display
	// contexts, computed at construction.
	HTMLTitle string

	url  string
	tree *goquery.Document
}

// New builds a Chapter from XHTML content. Title and content must be
// non-empty; srcURL may be empty when the chapter has no source page.
func New(content, title, srcURL string) (*Chapter, error) {
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if content == "" {
		return nil, ErrEmptyContent
	}

	tree, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("chapter: cannot parse content: %w", err)
	}

	return &Chapter{
		Title:     title,
		Content:   content,
		HTMLTitle: html.EscapeString(title),
		url:       srcURL,
		tree:      tree,
	}, nil
}

// URL returns the source URL, or ErrNoURL when the chapter has none.
// Callers relying on URL-derived behavior must branch on it explicitly.
func (c *Chapter) URL() (string, error) {
	if c.url == "" {
		return "", ErrNoURL
	}
	return c.url, nil
}

// Write persists the chapter content as UTF-8. The name must end in
// Extension; anything else is rejected before any file is touched.
func (c *Chapter) Write(name string) error {
	if !strings.HasSuffix(name, Extension) {
		return ErrBadExtension
	}
	return os.WriteFile(name, []byte(c.Content), 0644)
}

// RewriteStats reports what RewriteImages did to the chapter.
type RewriteStats struct {
	Saved   int
	Dropped int
	Bytes   int64
}

// RewriteImages localizes every <img src> in the chapter: each reference is
// resolved against the chapter URL, fetched through res into the images
// subdirectory of bookDir, and rewritten to "images/<name>.<ext>". Nodes
// whose reference cannot be resolved or fetched are removed rather than left
// dangling. bookDir must already contain an images subdirectory; its absence
// is a configuration error, not something to create silently.
func (c *Chapter) RewriteImages(res *ImageResolver, bookDir string) (RewriteStats, error) {
	imagesDir := filepath.Join(bookDir, "images")
	if st, err := os.Stat(imagesDir); err != nil || !st.IsDir() {
		return RewriteStats{}, fmt.Errorf("chapter: %s does not contain an images subdirectory", bookDir)
	}

	var stats RewriteStats

	// Identical references within one chapter resolve to one saved file.
	local := make(map[string]string)

	c.tree.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			return
		}

		full, ok := c.resolveRef(strings.TrimSpace(src))
		if !ok {
			img.Remove()
			stats.Dropped++
			return
		}

		if path, seen := local[full]; seen {
			img.SetAttr("src", path)
			return
		}

		name := uuid.NewString()
		ext, n, err := res.Save(full, imagesDir, name)
		if err != nil {
			img.Remove()
			stats.Dropped++
			return
		}

		path := "images/" + name + "." + ext
		local[full] = path
		img.SetAttr("src", path)
		stats.Saved++
		stats.Bytes += n
	})

	out, err := goquery.OuterHtml(c.tree.Selection)
	if err != nil {
		return stats, fmt.Errorf("chapter: cannot serialize content: %w", err)
	}

	// Single correction point for serializer artifacts.
	c.Content = strings.ReplaceAll(out, "<br>", "<br/>")

	return stats, nil
}

// resolveRef maps an img src to a fetchable reference. Existing local paths
// pass through untouched; absolute URLs stand alone; relative references
// resolve against the chapter URL and fail per-node without one.
func (c *Chapter) resolveRef(src string) (string, bool) {
	if _, err := os.Stat(src); err == nil {
		return src, true
	}

	u, err := url.Parse(src)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		return u.String(), true
	}
	if c.url == "" {
		return "", false
	}

	base, err := url.Parse(c.url)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}
