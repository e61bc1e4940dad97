package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"edublast/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// AccountAPIConfig points at the external account directory (the secondary
// identity store). The directory only supports read-by-id and list-all.
type AccountAPIConfig struct {
	BaseURL    string `json:"base_url"`
	ServiceKey string `json:"-"`
}

type Config struct {
	Environment        string           `json:"environment"`
	ServerPort         string           `json:"server_port"`
	AppURL             string           `json:"app_url"`
	DBHost             string           `json:"db_host"`
	DBPort             string           `json:"db_port"`
	DBUser             string           `json:"db_user"`
	DBPassword         string           `json:"-"`
	DBName             string           `json:"db_name"`
	DBSSLMode          string           `json:"db_ssl_mode"`
	DBMaxIdleConns     int              `json:"db_max_idle_conns"`
	DBMaxOpenConns     int              `json:"db_max_open_conns"`
	JWTSecret          string           `json:"-"`
	SentryDSN          string           `json:"-"`
	SMTP               SMTPConfig       `json:"smtp"`
	AccountAPI         AccountAPIConfig `json:"account_api"`
	MailProvider       string           `json:"mail_provider"`
	MailProviderMode   string           `json:"mail_provider_mode"`
	SendConcurrency    int              `json:"send_concurrency"`
	SendTimeoutSeconds int              `json:"send_timeout_seconds"`
	RateLimitBroadcast int              `json:"rate_limit_broadcast"`
	Redis              RedisConfig      `json:"redis"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		AppURL:         getEnv("APP_URL", "http://localhost:5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "edublast"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", "localhost"),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", "noreply@edublast.io"),
			FromName:  getEnv("SMTP_FROM_NAME", "Edublast"),
		},
		AccountAPI: AccountAPIConfig{
			BaseURL:    getEnv("ACCOUNT_API_URL", ""),
			ServiceKey: getEnv("ACCOUNT_API_KEY", ""),
		},
		MailProvider:       getEnv("MAIL_PROVIDER", "smtp"),
		MailProviderMode:   getEnv("MAIL_PROVIDER_MODE", "production"),
		SendConcurrency:    getEnvAsInt("BROADCAST_CONCURRENCY", 8),
		SendTimeoutSeconds: getEnvAsInt("SEND_TIMEOUT_SECONDS", 30),
		RateLimitBroadcast: getEnvAsInt("RATE_LIMIT_BROADCAST", 5),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.SMTP.Username == "" || AppConfig.SMTP.Password == "" {
			return fmt.Errorf("SMTP credentials are required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Mail provider: %s (%s), SMTP host %s, concurrency %d",
		AppConfig.MailProvider,
		AppConfig.MailProviderMode,
		AppConfig.SMTP.Host,
		AppConfig.SendConcurrency)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Participant{},
		&models.Program{},
		&models.Enrollment{},
		&models.EmailTemplate{},
		&models.Broadcast{},
		&models.DeliveryRecord{},
	)
}
