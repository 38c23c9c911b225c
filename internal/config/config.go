package config

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Config holds the application configuration
type Config struct {
	DatabasePath string `json:"database_path"`
	APIPort      string `json:"api_port"`
	LogLevel     string `json:"log_level"`
	DataDir      string `json:"data_dir"`

	EncryptionKey string `json:"encryption_key"` // used to encrypt the stored refresh secret

	GoogleClientID     string `json:"google_client_id"`
	GoogleClientSecret string `json:"google_client_secret"`
	GoogleRedirectURL  string `json:"google_redirect_url"`
	DriveFolderID      string `json:"drive_folder_id"` // optional parent folder for uploaded attachments

	SyncIntervalMinutes int    `json:"sync_interval_minutes"`
	CORSOrigins         string `json:"cors_origins"`
}

// Default configuration values
const (
	DefaultDatabasePath        = "data/archiver.db"
	DefaultAPIPort             = "8080"
	DefaultLogLevel            = "INFO"
	DefaultDataDir             = "data"
	DefaultEncryptionKey       = "email-archiver-default-key-change-in-production"
	DefaultRedirectURL         = "http://localhost:8080/api/oauth/google/callback"
	DefaultSyncIntervalMinutes = 5
	DefaultCORSOrigins         = "*"
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:        DefaultDatabasePath,
		APIPort:             DefaultAPIPort,
		LogLevel:            DefaultLogLevel,
		DataDir:             DefaultDataDir,
		EncryptionKey:       DefaultEncryptionKey,
		GoogleRedirectURL:   DefaultRedirectURL,
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		CORSOrigins:         DefaultCORSOrigins,
	}

	// Config file is optional
	_ = cfg.loadFromFile()

	// Override with environment variables
	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return json.Unmarshal(data, c)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("ARCHIVER_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("ARCHIVER_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("ARCHIVER_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("ARCHIVER_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("ARCHIVER_ENCRYPTION_KEY"); val != "" {
		c.EncryptionKey = val
	}
	if val := os.Getenv("GOOGLE_CLIENT_ID"); val != "" {
		c.GoogleClientID = val
	}
	if val := os.Getenv("GOOGLE_CLIENT_SECRET"); val != "" {
		c.GoogleClientSecret = val
	}
	if val := os.Getenv("GOOGLE_REDIRECT_URL"); val != "" {
		c.GoogleRedirectURL = val
	}
	if val := os.Getenv("ARCHIVER_DRIVE_FOLDER_ID"); val != "" {
		c.DriveFolderID = val
	}
	if val := os.Getenv("ARCHIVER_SYNC_INTERVAL_MINUTES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.SyncIntervalMinutes = n
		}
	}
	if val := os.Getenv("ARCHIVER_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
}

// GetEncryptionKey returns the 32-byte key used for refresh secret encryption
func (c *Config) GetEncryptionKey() []byte {
	// SHA-256 guarantees a 32-byte key for AES-256 regardless of input length
	hash := sha256.Sum256([]byte(c.EncryptionKey))
	return hash[:]
}

// OAuthConfig returns the Google OAuth2 configuration
func (c *Config) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  c.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/gmail.readonly",
			"https://www.googleapis.com/auth/drive.file",
		},
		Endpoint: google.Endpoint,
	}
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
