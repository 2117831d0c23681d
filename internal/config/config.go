package config

import (
	"os"
)

// Config holds everything the app reads from the environment. Values come
// from the process env (loaded from .env by main via godotenv).
type Config struct {
	Port        string
	DatabaseDSN string

	GeminiAPIKey string
	GeminiModel  string

	GoogleSearchAPIKey   string
	GoogleSearchEngineID string

	// Base URLs are overridable mostly so tests can point at local servers.
	HackerNewsBaseURL string
	AlgoliaBaseURL    string
	JinaBaseURL       string
	SearchBaseURL     string
}

func Load() Config {
	return Config{
		Port:                 getenv("PORT", "8080"),
		DatabaseDSN:          getenv("DATABASE_DSN", "host=localhost user=postgres password=password dbname=jobseekr port=5432 sslmode=disable"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		GoogleSearchAPIKey:   os.Getenv("GOOGLE_SEARCH_API_KEY"),
		GoogleSearchEngineID: os.Getenv("GOOGLE_SEARCH_ENGINE_ID"),
		HackerNewsBaseURL:    getenv("HACKERNEWS_BASE_URL", "https://hacker-news.firebaseio.com/v0"),
		AlgoliaBaseURL:       getenv("ALGOLIA_BASE_URL", "https://hn.algolia.com/api/v1"),
		JinaBaseURL:          getenv("JINA_BASE_URL", "https://r.jina.ai"),
		SearchBaseURL:        getenv("SEARCH_BASE_URL", "https://www.googleapis.com/customsearch/v1"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
