package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Thresholds holds the warning window in days for each document category
type Thresholds struct {
	License   int `yaml:"license"`
	Vehicle   int `yaml:"vehicle"`
	Insurance int `yaml:"insurance"`
}

// Coverage holds the company minimums an insurance policy must meet
type Coverage struct {
	PropertyMinimum  int64 `yaml:"property_minimum"`
	PassengerMinimum int64 `yaml:"passenger_minimum"`
}

// Defaults used when the environment does not override them
const (
	DefaultWarningDays      = 30
	DefaultPropertyMinimum  = 50000000
	DefaultPassengerMinimum = 20000000
	DefaultMonitorSchedule  = "0 0 * * *"
	DefaultMonitorTimeout   = 60 * time.Second
	DefaultQueryTimeout     = 10 * time.Second
	DefaultTimezone         = "Asia/Tokyo"
)

// Config holds the project config values
type Config struct {
	URL          string
	DatabaseName string
	BaseURL      string
	Port         string
	Env          string

	RecordStore       string
	DynamoTablePrefix string
	DynamoEndpoint    string

	FileStorage          string
	LocalStorageDir      string
	S3Bucket             string
	CloudinaryCloudName  string
	CloudinaryAPIKey     string
	CloudinaryAPISecret  string
	CloudinaryFolderName string

	SendgridAPIKey  string
	NotifyFromEmail string
	NotifyFromName  string

	JWTSecret  string
	CronSecret string
	RedisURL   string

	PDFFontPath string
	Timezone    string

	MonitorSchedule string
	MonitorTimeout  time.Duration
	QueryTimeout    time.Duration
	Thresholds      Thresholds
	Coverage        Coverage
}

// New sets up all config related services
func New() *Config {
	// a missing .env file is the normal case outside local development
	_ = godotenv.Load()

	env := getEnv("ENV", "production")
	logger, err := setLogger(env)
	if err != nil {
		logger = zap.NewExample()
	}
	defer logger.Sync()
	_ = zap.ReplaceGlobals(logger)

	c := &Config{
		URL:          os.Getenv("DB_URI"),
		DatabaseName: os.Getenv("DB_NAME"),
		BaseURL:      os.Getenv("BASE_URL"),
		Port:         getEnv("PORT", "8080"),
		Env:          env,

		RecordStore:       getEnv("RECORD_STORE", "mongo"),
		DynamoTablePrefix: os.Getenv("DYNAMODB_TABLE_PREFIX"),
		DynamoEndpoint:    os.Getenv("DYNAMODB_ENDPOINT"),

		FileStorage:          getEnv("FILE_STORAGE", "local"),
		LocalStorageDir:      getEnv("LOCAL_STORAGE_DIR", "uploads"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		CloudinaryCloudName:  os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:     os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:  os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryFolderName: getEnv("CLOUDINARY_FOLDER", "permits"),

		SendgridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		NotifyFromEmail: getEnv("NOTIFY_FROM_EMAIL", "no-reply@commute-permit.example.com"),
		NotifyFromName:  getEnv("NOTIFY_FROM_NAME", "Commute Permit Office"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		CronSecret: os.Getenv("CRON_SECRET"),
		RedisURL:   os.Getenv("REDIS_URL"),

		PDFFontPath: os.Getenv("PDF_FONT_PATH"),
		Timezone:    getEnv("TIMEZONE", DefaultTimezone),

		MonitorSchedule: getEnv("MONITOR_SCHEDULE", DefaultMonitorSchedule),
		MonitorTimeout:  getDuration("MONITOR_TIMEOUT", DefaultMonitorTimeout),
		QueryTimeout:    getDuration("QUERY_TIMEOUT", DefaultQueryTimeout),
		Thresholds: Thresholds{
			License:   getInt("LICENSE_WARNING_DAYS", DefaultWarningDays),
			Vehicle:   getInt("VEHICLE_WARNING_DAYS", DefaultWarningDays),
			Insurance: getInt("INSURANCE_WARNING_DAYS", DefaultWarningDays),
		},
		Coverage: Coverage{
			PropertyMinimum:  int64(getInt("INSURANCE_PROPERTY_MINIMUM", DefaultPropertyMinimum)),
			PassengerMinimum: int64(getInt("INSURANCE_PASSENGER_MINIMUM", DefaultPassengerMinimum)),
		},
	}

	if path := os.Getenv("EXPIRATION_SETTINGS_FILE"); path != "" {
		if err := c.loadSettingsFile(path); err != nil {
			zap.S().Warnw("failed to load expiration settings file", "path", path, "error", err)
		}
	}

	return c
}

// Location returns the configured timezone, falling back to a fixed JST zone
// when the tz database is unavailable
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		zap.S().Warnw("invalid integer setting, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		zap.S().Warnw("invalid duration setting, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

// ErrorStatus is a useful function that will log, write http headers and body for a
// give message, status code and err. Server errors only expose the message.
func ErrorStatus(message string, httpStatusCode int, w http.ResponseWriter, err error) {
	zap.S().Errorw(message, "status", httpStatusCode, "error", err)
	response := message
	if err != nil && httpStatusCode < http.StatusInternalServerError {
		response = fmt.Sprintf("%s, %v", message, err)
	}
	b, _ := json.Marshal(map[string]string{"response": response})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	w.Write(b)
}
