package config

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "livecast",

		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o",
			Timeout:    "120s",
			MaxRetries: 3,
			RetryDelay: "2s",
		},

		Speech: SpeechConfig{
			Model:        "tts-1-hd",
			DefaultVoice: "shimmer",
			Voices:       map[string]string{"aus": "fable"},
		},

		Embedding: EmbeddingConfig{
			Provider:    "openai",
			OpenAIModel: "text-embedding-3-large",
			GenAIModel:  "gemini-embedding-001",
			BatchSize:   64,
		},

		Search: SearchConfig{
			Enabled:      false,
			Endpoint:     "https://www.googleapis.com/customsearch/v1",
			URLsToReturn: 4,
			DateRestrict: "d2",
		},

		Browser: BrowserConfig{
			Headless:           true,
			PageLoadTimeout:    "30s",
			SettleDelay:        "2s",
			StartupConcurrency: 2,
			LaunchRetries:      10,
			UserDataRoot:       "/tmp",
		},

		Scrape: ScrapeConfig{
			SplitterPattern: `^#+\s`,
			MaxWords:        500,
			MinWords:        100,
			FetchTimeout:    "300s",
			ImageSources: []ImageSource{
				{Keyword: "geps", BaseURL: "https://www.tropicaltidbits.com/storminfo/"},
				{Keyword: "sfcplot", BaseURL: "https://www.tropicaltidbits.com/storminfo/sfcplots/"},
				{Keyword: "tracks", BaseURL: "https://www.tropicaltidbits.com/storminfo/"},
				{Keyword: "gefs", BaseURL: "https://www.tropicaltidbits.com/storminfo/"},
				{Keyword: "intensity", BaseURL: "https://www.tropicaltidbits.com/storminfo/"},
			},
		},

		Store: StoreConfig{
			DatabasePath: ".livecast/livecast.db",
			RetrievalK:   4,
			Retention:    "24h",
		},

		Judge: JudgeConfig{
			Enabled: false,
			K:       3,
		},

		Media: MediaConfig{
			OutputDir: ".livecast/stream",
			ImagesDir: "images_for_stream",
			ImageHeaders: map[string]string{
				"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3",
				"Referer":         "https://www.tropicaltidbits.com/",
				"Accept-Language": "en-US,en;q=0.9",
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
			},
			DownloadStagger: "1s",
			DownloadTimeout: "300s",
			KeyMessageGap:   40,
		},

		Audio: AudioConfig{
			OutputDir:  ".livecast/stream",
			LeadIn:     "5s",
			MaxSeconds: 0,
			FFmpegBin:  "ffmpeg",
			FFprobeBin: "ffprobe",
		},

		Delivery: DeliveryConfig{
			Listen:           ":8765",
			JitterMinSeconds: 1,
			JitterMaxSeconds: 10,
			JitterGapSeconds: 4,
		},

		Playback: PlaybackConfig{
			Mode: "timed",
		},

		Catalog:    defaultCatalog(),
		Collection: defaultCollection(),

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

func defaultCatalog() Catalog {
	return Catalog{
		Websites: map[string][]Website{
			"tropics_forecast_websites_ph": {
				{Primary: "https://www.metoc.navy.mil/jtwc/products/wp2524prog.txt"},
				{Primary: "https://www.pagasa.dost.gov.ph/weather#daily-weather-forecast"},
				{
					Primary: "https://www.rappler.com/philippines/weather/super-typhoon-pepito-update-pagasa-forecast-november-16-2024-2pm/",
					Backup:  "https://www.pagasa.dost.gov.ph/tropical-cyclone/severe-weather-bulletin",
				},
			},
			"tropics_forecast_websites_us": {
				{Primary: "https://www.nhc.noaa.gov/text/refresh/MIATCDAT4+shtml/232053.shtml?"},
				{Primary: "https://www.nhc.noaa.gov/text/refresh/MIATCPAT4+shtml/232347.shtml?"},
				{Primary: "https://www.cbsnews.com/news/hurricane-milton-maps-florida-forecast-tampa-bay-landfall/"},
			},
			"tropics_forecast_websites_au": {
				{Primary: "http://www.bom.gov.au/cgi-bin/wrap_fwo.pl?IDW24200.html"},
				{Primary: "https://www.metoc.navy.mil/jtwc/products/sh1725prog.txt?"},
				{Primary: "https://www.abc.net.au/news/2025-02-14/tropical-cyclone-zelia-live-updates-blog/104937188"},
			},
			"city_forecast_websites_one_ph": {
				{Primary: "https://www.weather-atlas.com/en/philippines/manila"},
				{Primary: "https://www.weather-atlas.com/en/philippines/quezon-city"},
			},
			"city_forecast_websites_two_ph": {
				{Primary: "https://www.weather-atlas.com/en/philippines/davao-city"},
				{Primary: "https://www.weather-atlas.com/en/philippines/cebu-city"},
			},
		},
		Queries: map[string]QuerySet{
			"tropics_main_search_queries": {
				{Name: "agency_query", Text: "tropical cyclone zelia forecast"},
				{Name: "query_two", Text: "tropical cyclone zelia impacts australia"},
				{Name: "query_three", Text: "tropical cyclone zelia preparation"},
			},
			"city_forecast_queries_one_ph": {
				{Name: "query_one", Text: "Weather for Manila"},
				{Name: "query_three", Text: "Weather for Quezon City"},
			},
			"city_forecast_queries_two_ph": {
				{Name: "query_one", Text: "Weather forecast for Davao City"},
				{Name: "query_two", Text: "Weather forecast for Cebu City"},
			},
		},
	}
}

func defaultCollection() CollectionConfig {
	return CollectionConfig{
		StormURL:   "https://www.tropicaltidbits.com/storminfo/#25W",
		Iterations: 2,
		Scenes: []SceneConfig{
			{
				Name:         "first_scene",
				Queries:      "tropics_main_search_queries",
				Websites:     "tropics_forecast_websites_ph",
				Instructions: "tropics_news_reporter_en",
				Language:     "en",
			},
			{
				Name:         "second_scene",
				Queries:      "city_forecast_queries_one_ph",
				Websites:     "city_forecast_websites_one_ph",
				Instructions: "city_forecast_ph",
				Language:     "ph",
			},
			{
				Name:         "third_scene",
				Queries:      "city_forecast_queries_two_ph",
				Websites:     "city_forecast_websites_two_ph",
				Instructions: "city_forecast_ph",
				Language:     "ph",
			},
		},
	}
}
