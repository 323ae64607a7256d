// Package book turns a manifest of chapter sources into a directory of
// finished XHTML chapters with a shared images folder, ready for packaging.
package book

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gosimple/slug"
	"github.com/larkvale/webtome/internal/chapter"
	"github.com/larkvale/webtome/internal/ui"
)

// Builder builds the chapters of one manifest concurrently. Each chapter is
// processed synchronously by a single worker; chapters never share state, so
// bounded parallelism across them is safe.
type Builder struct {
	Factory  chapter.Builder
	Resolver *chapter.ImageResolver
	Log      *ui.Logger
	Workers  int
	KeepTmp  bool
}

// ChapterResult reports one chapter's outcome. A failed chapter does not
// fail the book; the caller decides what an acceptable failure rate is.
type ChapterResult struct {
	Index int
	Title string
	Path  string
	Stats chapter.RewriteStats
	Err   error
}

// Build processes every chapter of m into <outputDir>/<slug(title)>,
// working in a _tmp directory that is renamed into place once at least one
// chapter succeeded. ph may be nil when no progress display is wanted.
func (b *Builder) Build(ctx context.Context, m *Manifest, outputDir string, ph *ui.ProgressHandle) ([]ChapterResult, error) {
	name := slug.Make(m.Title)
	if name == "" {
		name = "book"
	}

	final := filepath.Join(outputDir, name)
	if _, err := os.Stat(final); err == nil {
		return nil, fmt.Errorf("book: %s already exists", final)
	}

	tmp := final + "_tmp"
	if err := os.MkdirAll(filepath.Join(tmp, "images"), 0755); err != nil {
		return nil, err
	}

	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(m.Chapters) {
		workers = len(m.Chapters)
	}

	total := len(m.Chapters)
	if ph != nil {
		ph.SetTotal(total)
	}

	results := make([]ChapterResult, total)

	var mu sync.Mutex
	var done int
	var bytes int64

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, src := range m.Chapters {
		i, src := i, src
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return results, err
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return results, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			res := b.buildChapter(ctx, i, src, tmp)
			results[i] = res

			mu.Lock()
			done++
			bytes += res.Stats.Bytes
			if ph != nil {
				ph.Update(done, total, bytes)
			}
			mu.Unlock()

			if res.Err != nil {
				b.Log.Errorf("Chapter %d (%s) failed: %v\n", i+1, src.Name(), res.Err)
			}
		}()
	}
	wg.Wait()

	if ph != nil {
		ph.MarkDone()
	}

	if failed := countFailed(results); failed == total {
		if !b.KeepTmp {
			_ = os.RemoveAll(tmp)
		}
		return results, fmt.Errorf("book: all %d chapters failed", total)
	}

	if err := os.Rename(tmp, final); err != nil {
		return results, err
	}

	for i := range results {
		if results[i].Err == nil {
			results[i].Path = filepath.Join(final, filepath.Base(results[i].Path))
		}
	}

	return results, nil
}

func (b *Builder) buildChapter(ctx context.Context, idx int, src Source, bookDir string) ChapterResult {
	res := ChapterResult{Index: idx}

	var ch *chapter.Chapter
	var err error
	if src.URL != "" {
		ch, err = b.Factory.FromURL(ctx, src.URL, src.Title)
	} else {
		ch, err = b.Factory.FromFile(src.File, "", src.Title)
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Title = ch.Title

	stats, err := ch.RewriteImages(b.Resolver, bookDir)
	if err != nil {
		res.Err = err
		return res
	}
	res.Stats = stats

	name := fmt.Sprintf("%03d_%s%s", idx+1, slug.Make(ch.Title), chapter.Extension)
	path := filepath.Join(bookDir, name)
	if err := ch.Write(path); err != nil {
		res.Err = err
		return res
	}
	res.Path = path

	b.Log.Debugf("Chapter %d done: %s (%d images, %d dropped)\n",
		idx+1, ch.Title, stats.Saved, stats.Dropped)

	return res
}

func countFailed(results []ChapterResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
