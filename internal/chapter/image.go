package chapter

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// knownSuffixes are the extensions trusted without sniffing. Anything else
// is classified from its leading bytes.
var knownSuffixes = []string{"jpg", "jpeg", "gif", "png"}

// ImageResolver turns an image reference (remote URL or local path) into a
// saved local file with a detected extension.
type ImageResolver struct {
	client *http.Client
}

func NewImageResolver(c *http.Client) *ImageResolver {
	if c == nil {
		c = http.DefaultClient
	}
	return &ImageResolver{client: c}
}

// Save stores the image at src into dir as <name>.<ext> and returns the
// detected extension and the number of bytes written. The file appears
// atomically: a failed fetch never leaves a partial file under the final
// name. Failures are reported as *ImageError.
func (r *ImageResolver) Save(src, dir, name string) (string, int64, error) {
	if _, err := os.Stat(src); err == nil {
		return r.saveLocal(src, dir, name)
	}
	return r.saveRemote(src, dir, name)
}

func (r *ImageResolver) saveLocal(src, dir, name string) (string, int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", 0, &ImageError{URL: src, Err: err}
	}

	ext := extFromURL(src)
	if ext == "" {
		ext = extFromBytes(data)
	}
	if ext == "" {
		return "", 0, &ImageError{URL: src, Err: fmt.Errorf("unrecognized image format")}
	}

	return r.commit(data, dir, name, ext, src)
}

func (r *ImageResolver) saveRemote(src, dir, name string) (string, int64, error) {
	resp, err := r.client.Get(src)
	if err != nil {
		return "", 0, &ImageError{URL: src, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &ImageError{URL: src, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &ImageError{URL: src, Err: err}
	}
	if len(data) == 0 {
		return "", 0, &ImageError{URL: src, Err: fmt.Errorf("empty response body")}
	}

	ext := extFromURL(src)
	if ext == "" {
		ext = extFromBytes(data)
	}
	if ext == "" {
		return "", 0, &ImageError{URL: src, Err: fmt.Errorf("unrecognized image format")}
	}

	return r.commit(data, dir, name, ext, src)
}

// commit writes data to a temp file in dir and renames it into place.
func (r *ImageResolver) commit(data []byte, dir, name, ext, src string) (string, int64, error) {
	tmp, err := os.CreateTemp(dir, name+"-*")
	if err != nil {
		return "", 0, &ImageError{URL: src, Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", 0, &ImageError{URL: src, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, &ImageError{URL: src, Err: err}
	}

	final := filepath.Join(dir, name+"."+ext)
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, &ImageError{URL: src, Err: err}
	}

	return ext, int64(len(data)), nil
}

// extFromURL is the fast path: trust a recognized trailing extension.
func extFromURL(src string) string {
	low := strings.ToLower(src)
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(low, suffix) {
			return suffix
		}
	}
	return ""
}

// extFromBytes classifies an image from its leading bytes.
func extFromBytes(data []byte) string {
	t, err := filetype.Match(data)
	if err != nil || t == filetype.Unknown {
		return ""
	}
	if t.MIME.Type != "image" {
		return ""
	}
	return t.Extension
}
