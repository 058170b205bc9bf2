package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"livecast/internal/browser"
	"livecast/internal/config"
	"livecast/internal/media"
)

var saveImages bool

// generateCmd builds one collection without playing it.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one collection and print it as JSON",
	RunE:  runGenerate,
}

// imagesCmd scrapes storm images from a page.
var imagesCmd = &cobra.Command{
	Use:   "images [url]",
	Short: "List image URLs scraped from a page",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImages,
}

// cleanupCmd kills leftover tagged Chrome processes.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup-browsers <tag>",
	Short: "Kill Chrome processes started with a session tag",
	Args:  cobra.ExactArgs(1),
	RunE:  runCleanup,
}

func init() {
	imagesCmd.Flags().BoolVar(&saveImages, "save", false, "Download the images and zip them into the stream directory")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, ws)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	coll, err := a.builder.GenerateCollection(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(coll, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runImages(cmd *cobra.Command, args []string) error {
	cfg, ws, err := loadConfig()
	if err != nil {
		return err
	}
	url := cfg.Collection.StormURL
	if len(args) == 1 {
		url = args[0]
	}
	if url == "" {
		return fmt.Errorf("no url given and collection.storm_url is empty")
	}

	scraper, err := newScraper(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(cmd.Context())
	defer cancel()

	urls, err := scraper.StormImages(ctx, url)
	if err != nil {
		return err
	}
	for _, u := range urls {
		fmt.Fprintln(cmd.OutOrStdout(), u)
	}
	if !saveImages {
		return nil
	}

	mcfg := media.DefaultConfig()
	mcfg.OutputDir = config.Resolve(ws, cfg.Media.OutputDir)
	mcfg.ImagesDir = cfg.Media.ImagesDir
	mcfg.Headers = cfg.Media.ImageHeaders
	mcfg.Stagger = cfg.GetDownloadStagger()
	mcfg.Timeout = cfg.GetDownloadTimeout()
	zipPath, err := media.NewManager(mcfg, nil).SaveImages(ctx, urls)
	if err != nil {
		return err
	}
	logger.Info("Images saved", zap.String("zip", zipPath), zap.Int("urls", len(urls)))
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	tag := args[0]
	pids, err := browser.CleanupTagged(tag)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Killed %d Chrome process(es) tagged %q\n", len(pids), tag)
	return nil
}
