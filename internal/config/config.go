package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Output         string `yaml:"output"`
	Workers        int    `yaml:"workers"`
	KeepTmp        bool   `yaml:"keep_tmp"`
	Debug          bool   `yaml:"debug"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	DefaultManifest string `yaml:"default_manifest"`
	ExpandGists     bool   `yaml:"expand_gists"`

	Cookie     string `yaml:"cookie"`
	CookieFile string `yaml:"cookie_file"`
	UserAgent  string `yaml:"user_agent"`
	CFBypass   bool   `yaml:"cf_bypass"`
}

type Options struct {
	IgnoreConfig    bool
	Debug           bool
	Output          string
	Workers         int
	KeepTmp         bool
	TimeoutSeconds  int
	DefaultManifest string
	Cookie          string
	CookieFile      string
	UserAgent       string
	CFBypass        bool
}

func DefaultConfig() *Config {
	return &Config{
		Output:         ".",
		Workers:        2,
		KeepTmp:        false,
		Debug:          false,
		TimeoutSeconds: 30,
		ExpandGists:    true,
	}
}

func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func loadYAML(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

// LoadMerged loads the active profile (or defaults) and overlays the CLI
// options on top.
func LoadMerged(opts Options) (*Config, string, error) {
	if opts.IgnoreConfig {
		cfg := DefaultConfig()
		mergeConfig(cfg, opts)
		normalizeDefaults(cfg)
		return cfg, "(ignored config)", nil
	}

	activePath, err := ActiveConfigPath()
	if err == ErrNoConfig || activePath == "" {
		cfg := DefaultConfig()
		mergeConfig(cfg, opts)
		normalizeDefaults(cfg)
		return cfg, "(default config in memory)\nRun `webtome config init` to create an actual config\n", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := loadYAML(activePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config %s: %w", activePath, err)
	}

	mergeConfig(cfg, opts)
	normalizeDefaults(cfg)

	return cfg, activePath, nil
}

func mergeConfig(c *Config, o Options) {
	if o.Output != "" {
		c.Output = o.Output
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.KeepTmp {
		c.KeepTmp = true
	}
	if o.Debug {
		c.Debug = true
	}
	if o.TimeoutSeconds != 0 {
		c.TimeoutSeconds = o.TimeoutSeconds
	}
	if o.DefaultManifest != "" {
		c.DefaultManifest = o.DefaultManifest
	}
	if o.Cookie != "" {
		c.Cookie = o.Cookie
	}
	if o.CookieFile != "" {
		c.CookieFile = o.CookieFile
	}
	if o.UserAgent != "" {
		c.UserAgent = o.UserAgent
	}
	if o.CFBypass {
		c.CFBypass = true
	}
}

func normalizeDefaults(c *Config) {
	if c.Output == "" {
		c.Output = "."
	}
	if c.Workers == 0 {
		c.Workers = 2
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
}

func (c *Config) Print() {
	if c.Output != "" {
		fmt.Printf(" -output: %s\n", c.Output)
	}
	fmt.Printf(" -workers: %d\n", c.Workers)
	fmt.Printf(" -timeout_seconds: %d\n", c.TimeoutSeconds)
	fmt.Printf(" -expand_gists: %t\n", c.ExpandGists)
	if c.KeepTmp {
		fmt.Printf(" -keep_tmp: %t\n", c.KeepTmp)
	}
	if c.Debug {
		fmt.Printf(" -debug: %t\n", c.Debug)
	}
	if c.DefaultManifest != "" {
		fmt.Printf(" -default_manifest: %s\n", c.DefaultManifest)
	}
	if c.Cookie != "" {
		fmt.Printf(" -cookie: (set)\n")
	}
	if c.CookieFile != "" {
		fmt.Printf(" -cookie_file: %s\n", c.CookieFile)
	}
	if c.UserAgent != "" {
		fmt.Printf(" -user_agent: %s\n", c.UserAgent)
	}
	if c.CFBypass {
		fmt.Printf(" -cf_bypass: %t\n", c.CFBypass)
	}
}
