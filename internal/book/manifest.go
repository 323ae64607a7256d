package book

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source names one chapter input: exactly one of URL or File, plus an
// optional explicit title.
type Source struct {
	URL   string `yaml:"url,omitempty"`
	File  string `yaml:"file,omitempty"`
	Title string `yaml:"title,omitempty"`
}

// Name identifies the source in logs and errors.
func (s Source) Name() string {
	if s.URL != "" {
		return s.URL
	}
	return s.File
}

// Manifest describes one book: a title and an ordered chapter list.
type Manifest struct {
	Title    string   `yaml:"title"`
	Chapters []Source `yaml:"chapters"`
}

func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	return &m, nil
}

func (m *Manifest) Validate() error {
	if m.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(m.Chapters) == 0 {
		return fmt.Errorf("at least one chapter is required")
	}

	for i, s := range m.Chapters {
		if s.URL == "" && s.File == "" {
			return fmt.Errorf("chapter %d: url or file is required", i+1)
		}
		if s.URL != "" && s.File != "" {
			return fmt.Errorf("chapter %d: url and file are mutually exclusive", i+1)
		}
	}

	return nil
}
