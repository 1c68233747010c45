package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Drive  DriveConfig
	Gemini GeminiConfig
	Notion NotionConfig
	App    AppConfig
}

// DriveConfig holds Google Drive-related configuration
type DriveConfig struct {
	FolderID        string
	CredentialsPath string
	DownloadsDir    string
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey            string
	Model             string
	Temperature       float32
	Timeout           time.Duration
	RequestsPerMinute int
	MaxRetries        int
}

// NotionConfig holds Notion API configuration
type NotionConfig struct {
	APIKey            string
	DatabaseID        string
	Timeout           time.Duration
	RequestsPerSecond int
	MaxRetries        int
}

// AppConfig holds pipeline-level configuration
type AppConfig struct {
	CheckInterval time.Duration
	LedgerPath    string
	MaxPages      int
	MaxChars      int
	Pdftotext     string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Drive: DriveConfig{
			FolderID:        getEnv("GOOGLE_DRIVE_FOLDER_ID", ""),
			CredentialsPath: getEnv("GOOGLE_CREDENTIALS_PATH", "credentials.json"),
			DownloadsDir:    getEnv("DOWNLOADS_DIR", "./downloads"),
		},
		Gemini: GeminiConfig{
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			Model:             getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			Temperature:       getEnvAsFloat32("GEMINI_TEMPERATURE", 0.0),
			Timeout:           getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			RequestsPerMinute: getEnvAsInt("GEMINI_RPM", 15),
			MaxRetries:        getEnvAsInt("GEMINI_MAX_RETRIES", 3),
		},
		Notion: NotionConfig{
			APIKey:            getEnv("NOTION_API_KEY", ""),
			DatabaseID:        getEnv("NOTION_DATABASE_ID", ""),
			Timeout:           getEnvAsDuration("NOTION_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvAsInt("NOTION_RPS", 3),
			MaxRetries:        getEnvAsInt("NOTION_MAX_RETRIES", 3),
		},
		App: AppConfig{
			CheckInterval: getEnvAsDuration("CHECK_INTERVAL", 5*time.Minute),
			LedgerPath:    getEnv("LEDGER_PATH", "processed_files.db"),
			MaxPages:      getEnvAsInt("PDF_MAX_PAGES", 10),
			MaxChars:      getEnvAsInt("PDF_MAX_CHARS", 10000),
			Pdftotext:     getEnv("PDFTOTEXT_BIN", "pdftotext"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"GOOGLE_DRIVE_FOLDER_ID", c.Drive.FolderID},
		{"GEMINI_API_KEY", c.Gemini.APIKey},
		{"NOTION_API_KEY", c.Notion.APIKey},
		{"NOTION_DATABASE_ID", c.Notion.DatabaseID},
	}
	for _, r := range required {
		if r.value == "" {
			return NewConfigError(r.name+" is required", nil)
		}
	}
	if c.App.CheckInterval <= 0 {
		return NewConfigError("CHECK_INTERVAL must be positive", nil)
	}
	return nil
}
