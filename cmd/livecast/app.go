package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"livecast/internal/audio"
	"livecast/internal/browser"
	"livecast/internal/config"
	"livecast/internal/delivery"
	"livecast/internal/embedding"
	"livecast/internal/judge"
	"livecast/internal/livestream"
	"livecast/internal/llm"
	"livecast/internal/media"
	"livecast/internal/playback"
	"livecast/internal/prompts"
	"livecast/internal/scrape"
	"livecast/internal/script"
	"livecast/internal/search"
	"livecast/internal/store"
)

// app holds the wired pipeline for one process.
type app struct {
	cfg       *config.Config
	workspace string

	store      *store.Store
	catalog    *prompts.Catalog
	scraper    *livestream.BrowserScraper
	hub        *delivery.Hub
	media      *media.Manager
	builder    *livestream.Builder
	controller *livestream.Controller
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		SpeechModel: cfg.Speech.Model,
		Timeout:     cfg.GetLLMTimeout(),
		MaxRetries:  cfg.LLM.MaxRetries,
		RetryDelay:  cfg.GetRetryDelay(),
	}
}

func newScraper(cfg *config.Config) (*livestream.BrowserScraper, error) {
	fetcher, err := scrape.NewFetcher(scrape.Config{
		SplitterPattern: cfg.Scrape.SplitterPattern,
		MaxWords:        cfg.Scrape.MaxWords,
		MinWords:        cfg.Scrape.MinWords,
		FetchTimeout:    cfg.GetFetchTimeout(),
		ImageSources:    cfg.Scrape.ImageSources,
	})
	if err != nil {
		return nil, err
	}
	bcfg := browser.DefaultConfig()
	bcfg.Bin = cfg.Browser.Bin
	bcfg.Headless = cfg.Browser.Headless
	bcfg.PageLoadTimeout = cfg.GetPageLoadTimeout()
	bcfg.SettleDelay = cfg.GetSettleDelay()
	bcfg.StartupConcurrency = cfg.Browser.StartupConcurrency
	bcfg.LaunchRetries = cfg.Browser.LaunchRetries
	bcfg.UserDataRoot = cfg.Browser.UserDataRoot
	return livestream.NewBrowserScraper(browser.NewLauncher(bcfg), fetcher), nil
}

// newApp wires every component from cfg.
func newApp(cfg *config.Config, ws string) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	scenes, err := cfg.Collection.ResolveAll(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	catalog, err := prompts.Default()
	if err != nil {
		return nil, err
	}
	if catalog, err = catalog.WithOverrides(prompts.OverridesDir(ws)); err != nil {
		return nil, err
	}

	ecfg := embedding.DefaultConfig()
	ecfg.Provider = cfg.Embedding.Provider
	ecfg.OpenAIAPIKey = cfg.LLM.APIKey
	ecfg.OpenAIBaseURL = cfg.LLM.BaseURL
	ecfg.OpenAIModel = cfg.Embedding.OpenAIModel
	ecfg.GenAIAPIKey = cfg.Embedding.GenAIAPIKey
	ecfg.GenAIModel = cfg.Embedding.GenAIModel
	ecfg.TaskType = cfg.Embedding.TaskType
	ecfg.BatchSize = cfg.Embedding.BatchSize
	engine, err := embedding.NewEngine(ecfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(config.Resolve(ws, cfg.Store.DatabasePath), engine)
	if err != nil {
		return nil, err
	}

	scraper, err := newScraper(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	lcfg := llmConfig(cfg)
	client := llm.NewOpenAIClient(lcfg)
	speaker := llm.NewOpenAISpeech(lcfg)

	outDir := config.Resolve(ws, cfg.Media.OutputDir)
	hub := delivery.NewHub(outDir)
	deliverer := delivery.NewDeliverer(hub, delivery.Jitter{
		Min: cfg.Delivery.JitterMinSeconds,
		Max: cfg.Delivery.JitterMaxSeconds,
		Gap: cfg.Delivery.JitterGapSeconds,
	})

	synth := audio.NewSynthesizer(speaker, audio.NewFFmpegMixer(cfg.Audio.FFmpegBin, cfg.Audio.FFprobeBin), audio.Config{
		OutputDir:    config.Resolve(ws, cfg.Audio.OutputDir),
		LeadIn:       cfg.GetLeadIn(),
		MaxSeconds:   cfg.Audio.MaxSeconds,
		DefaultVoice: cfg.Speech.DefaultVoice,
		Voices:       cfg.Speech.Voices,
	})
	mgr := media.NewManager(media.Config{
		OutputDir: outDir,
		ImagesDir: cfg.Media.ImagesDir,
		Headers:   cfg.Media.ImageHeaders,
		Stagger:   cfg.GetDownloadStagger(),
		Timeout:   cfg.GetDownloadTimeout(),
	}, synth)

	writer := script.NewGenerator(client, st, catalog, script.Config{
		K:             cfg.Store.RetrievalK,
		KeyMessageGap: cfg.Media.KeyMessageGap,
	})

	deps := livestream.BuilderDeps{
		Scraper:      scraper,
		Store:        st,
		Writer:       writer,
		Instructions: catalog,
		Images:       mgr,
		Deliverer:    deliverer,
		Publisher:    hub,
	}
	// Optional collaborators stay nil interfaces when disabled.
	if cfg.Search.Enabled {
		deps.Searcher = search.NewClient(search.Config{
			Endpoint:     cfg.Search.Endpoint,
			APIKey:       cfg.Search.APIKey,
			EngineID:     cfg.Search.EngineID,
			DateRestrict: cfg.Search.DateRestrict,
		})
	}
	if cfg.Judge.Enabled {
		deps.Judge = judge.New(client, st, catalog, cfg.Judge.K)
	}
	builder := livestream.NewBuilder(livestream.BuilderConfig{
		Scenes:         scenes,
		StormURL:       cfg.Collection.StormURL,
		URLsToReturn:   cfg.Search.URLsToReturn,
		MaxStormImages: cfg.Collection.MaxStormImages,
		Retention:      cfg.GetRetention(),
	}, deps)

	player, err := playback.New(cfg.Playback.Mode, cfg.Playback.Command, hub)
	if err != nil {
		st.Close()
		return nil, err
	}
	controller := livestream.NewController(builder, mgr, deliverer, player, hub, cfg.Collection.Iterations)

	logger.Debug("Pipeline wired",
		zap.String("workspace", ws),
		zap.String("embedding", engine.Name()),
		zap.Int("scenes", len(scenes)),
		zap.Bool("search", cfg.Search.Enabled),
		zap.Bool("judge", cfg.Judge.Enabled))

	return &app{
		cfg:        cfg,
		workspace:  ws,
		store:      st,
		catalog:    catalog,
		scraper:    scraper,
		hub:        hub,
		media:      mgr,
		builder:    builder,
		controller: controller,
	}, nil
}

// Close releases the store and disconnects overlay clients.
func (a *app) Close() {
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("Closing store failed", zap.Error(err))
	}
}

// withTimeout derives the one-shot command context.
func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
