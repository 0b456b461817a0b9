package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	TileURL      string
	UserAgent    string
	Attribution  string
	MinZoom      int
	MaxZoom      int
	TileSize     int
	CacheTiles   int
	FetchWorkers int
	Width        int
	Height       int
	Padding      int
	CenterLat    float64
	CenterLon    float64
	Zoom         float64
	Output       string
	Offline      bool
	LogLevel     string
}

func Load() *Config {
	// A local .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg := &Config{
		TileURL:      getEnv("TILE_URL", "https://tile.openstreetmap.org/{z}/{x}/{y}.png"),
		UserAgent:    getEnv("TILE_USER_AGENT", ""),
		Attribution:  getEnv("TILE_ATTRIBUTION", "© OpenStreetMap contributors"),
		MinZoom:      getEnvInt("MIN_ZOOM", 0),
		MaxZoom:      getEnvInt("MAX_ZOOM", 19),
		TileSize:     getEnvInt("TILE_SIZE", 256),
		CacheTiles:   getEnvInt("CACHE_TILES", 512),
		FetchWorkers: getEnvInt("FETCH_WORKERS", 4),
		Width:        getEnvInt("WIDTH", 1024),
		Height:       getEnvInt("HEIGHT", 768),
		Padding:      getEnvInt("PADDING", 0),
		CenterLat:    getEnvFloat("CENTER_LAT", 0),
		CenterLon:    getEnvFloat("CENTER_LON", 0),
		Zoom:         getEnvFloat("ZOOM", 2),
		Output:       getEnv("OUTPUT", "map.png"),
		Offline:      getEnvBool("OFFLINE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
