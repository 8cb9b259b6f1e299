package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DBType     string
	SQLitePath string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	MigrationsPath string
	StaticDir      string

	// DefaultDeviceID is attached to sessions created via the start
	// endpoint; this deployment assumes a single appliance.
	DefaultDeviceID string

	// Auth is skipped when the corresponding credential is left empty.
	StaffUser    string
	StaffPass    string
	DeviceSecret string

	LogLevel string
}

// Load reads configuration from the environment, with a .env file as an
// optional source for local development.
func Load() *Config {
	// Missing .env is fine; the system environment is authoritative.
	godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "3001"),
		DBType:          getEnv("DB_TYPE", "sqlite"),
		SQLitePath:      getEnv("DB_PATH", "./data/trashtrack.sqlite"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnvInt("DB_PORT", 5432),
		DBUser:          getEnv("DB_USER", "trashtrack"),
		DBPassword:      getEnv("DB_PASSWORD", ""),
		DBName:          getEnv("DB_NAME", "trashtrack"),
		MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
		StaticDir:       getEnv("STATIC_DIR", "./ui/dist"),
		DefaultDeviceID: getEnv("DEFAULT_DEVICE_ID", "rpi5-001"),
		StaffUser:       getEnv("STAFF_USER", ""),
		StaffPass:       getEnv("STAFF_PASS", ""),
		DeviceSecret:    getEnv("DEVICE_SECRET", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
