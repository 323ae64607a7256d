package chapter

import (
	"errors"
	"fmt"
)

var (
	// ErrNoURL is returned by URL() when the chapter was built without a
	// source URL.
	ErrNoURL = errors.New("chapter: no source URL")

	// ErrEmptyTitle and ErrEmptyContent reject invalid construction input.
	ErrEmptyTitle   = errors.New("chapter: title cannot be empty")
	ErrEmptyContent = errors.New("chapter: content cannot be empty")

	// ErrBadExtension is returned by Write for file names that do not end
	// in the chapter extension.
	ErrBadExtension = errors.New("chapter: file name must end with " + Extension)
)

// ImageError reports a failed image resolution. Callers treat it as
// recoverable: the referencing node is dropped from the chapter.
type ImageError struct {
	URL string
	Err error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chapter: cannot save image %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("chapter: cannot save image %s", e.URL)
}

func (e *ImageError) Unwrap() error { return e.Err }

// SourceError reports a failed page or snippet fetch. Unlike ImageError it
// aborts chapter construction.
type SourceError struct {
	URL string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("chapter: invalid source %s: %v", e.URL, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
