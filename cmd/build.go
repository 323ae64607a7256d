package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/larkvale/webtome/internal/book"
	"github.com/larkvale/webtome/internal/chapter"
	"github.com/larkvale/webtome/internal/config"
	"github.com/larkvale/webtome/internal/ui"
	"github.com/larkvale/webtome/internal/util"

	"github.com/spf13/cobra"
)

var (
	// sources
	flagManifest string
	flagURL      string
	flagFile     string
	flagTitle    string

	// runtime
	flagOutput  string
	flagWorkers int
	flagKeepTmp bool
	flagDryRun  bool
	flagNoGists bool
	flagTimeout int

	// headers/auth
	flagCookie     string
	flagCookieFile string
	flagUserAgent  string
	flagCFBypass   bool
)

func init() {
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build XHTML chapters from web pages or files. Uses the defaults from the selected config, overwritten by CLI flags",
		RunE:  runBuild,
	}

	// sources
	buildCmd.Flags().StringVar(&flagManifest, "manifest", "", "yaml manifest listing chapter sources")
	buildCmd.Flags().StringVar(&flagURL, "url", "", "build a single chapter from this page URL")
	buildCmd.Flags().StringVar(&flagFile, "file", "", "build a single chapter from this HTML file")
	buildCmd.Flags().StringVar(&flagTitle, "title", "", "chapter title (single-source mode; inferred when empty)")

	// runtime
	buildCmd.Flags().StringVar(&flagOutput, "output", "", "output folder for the book directory")
	buildCmd.Flags().IntVar(&flagWorkers, "workers", 2, "parallel chapter builds")
	buildCmd.Flags().BoolVar(&flagKeepTmp, "keep-tmp", false, "keep the temporary folder when the build fails")
	buildCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "show what would be built, don't build")
	buildCmd.Flags().BoolVar(&flagNoGists, "no-gists", false, "do not expand GitHub gist embeds")
	buildCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "per-request timeout in seconds")

	// headers/auth
	buildCmd.Flags().StringVar(&flagCookie, "cookie", "", "cookie string, e.g. \"key=value; other=123\"")
	buildCmd.Flags().StringVar(&flagCookieFile, "cookie-file", "", "path to a text file with cookies (one header line)")
	buildCmd.Flags().StringVar(&flagUserAgent, "user-agent", "", "override User-Agent")
	buildCmd.Flags().BoolVar(&flagCFBypass, "cf-bypass", false, "enable the Cloudflare bypass transport")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, usedPath, err := config.LoadMerged(config.Options{
		IgnoreConfig:    flagIgnoreConfig,
		Debug:           flagDebug,
		Output:          flagOutput,
		KeepTmp:         flagKeepTmp,
		TimeoutSeconds:  flagTimeout,
		DefaultManifest: flagManifest,
		Cookie:          flagCookie,
		CookieFile:      flagCookieFile,
		UserAgent:       flagUserAgent,
		CFBypass:        flagCFBypass,
	})
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("workers") {
		cfg.Workers = flagWorkers
	}
	if flagNoGists {
		cfg.ExpandGists = false
	}

	logSvc := ui.NewLogger(cfg.Debug)
	if usedPath != "" {
		fmt.Printf("Config file: %s\n", usedPath)
	}

	manifest, err := resolveManifest(cfg)
	if err != nil {
		return err
	}

	if flagDryRun {
		fmt.Printf("Dry-run: book %q, %d chapters.\n\n", manifest.Title, len(manifest.Chapters))
		for i, src := range manifest.Chapters {
			title := src.Title
			if title == "" {
				title = "(inferred)"
			}
			fmt.Printf("%3d) %s\n    %s\n", i+1, title, src.Name())
		}
		return nil
	}

	if err := os.MkdirAll(cfg.Output, 0755); err != nil {
		return fmt.Errorf("cannot create output folder: %w", err)
	}

	client, err := util.NewClient(util.ClientOptions{
		Timeout:          time.Duration(cfg.TimeoutSeconds) * time.Second,
		UserAgent:        util.PickUserAgent(cfg.UserAgent),
		Cookie:           cfg.Cookie,
		CookieFile:       cfg.CookieFile,
		CloudflareBypass: cfg.CFBypass,
		DebugLogger:      logSvc,
	})
	if err != nil {
		return err
	}

	util.SetupInterruptHandler(cfg.Output)

	var factory chapter.Builder
	if cfg.ExpandGists {
		factory = chapter.NewGistFactory(client, nil)
	} else {
		factory = chapter.NewFactory(client, nil)
	}

	builder := &book.Builder{
		Factory:  factory,
		Resolver: chapter.NewImageResolver(client),
		Log:      logSvc,
		Workers:  cfg.Workers,
		KeepTmp:  cfg.KeepTmp,
	}

	pm := ui.NewProgressManager()
	handle := pm.Register(manifest.Title)

	start := time.Now()
	results, err := builder.Build(context.Background(), manifest, cfg.Output, handle)
	pm.Close()
	if err != nil {
		return err
	}

	stats := &ui.Stats{}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		stats.TotalChapters.Add(1)
		stats.TotalImages.Add(int64(r.Stats.Saved))
		stats.TotalDropped.Add(int64(r.Stats.Dropped))
		stats.TotalBytes.Add(r.Stats.Bytes)
	}

	fmt.Println()
	fmt.Println("Build Summary:")
	fmt.Printf("Chapters: %d/%d\n", stats.TotalChapters.Load(), len(results))
	fmt.Printf("Images:   %d (%d dropped)\n", stats.TotalImages.Load(), stats.TotalDropped.Load())
	fmt.Printf("Data:     %s\n", util.Human(stats.TotalBytes.Load()))
	fmt.Printf("Time:     %s\n", time.Since(start).Round(time.Second))
	fmt.Println("\nAll done.")

	return nil
}

// resolveManifest picks the chapter sources: an explicit manifest file, or a
// single --url/--file source wrapped into a one-chapter manifest.
func resolveManifest(cfg *config.Config) (*book.Manifest, error) {
	single := flagURL != "" || flagFile != ""

	if single && flagManifest != "" {
		return nil, fmt.Errorf("--manifest and --url/--file are mutually exclusive")
	}

	if single {
		title := flagTitle
		if title == "" {
			title = "Ebook"
		}
		m := &book.Manifest{
			Title:    title,
			Chapters: []book.Source{{URL: flagURL, File: flagFile, Title: flagTitle}},
		}
		return m, m.Validate()
	}

	path := cfg.DefaultManifest
	if path == "" {
		return nil, fmt.Errorf("missing --manifest/--url/--file and no default_manifest in config")
	}

	return book.LoadManifest(path)
}
