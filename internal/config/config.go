package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	NewRelic  NewRelicConfig
	Stripe    StripeConfig
	Payment   PaymentConfig
	Pricing   PricingConfig
	Dispatch  DispatchConfig
	Credit    CreditConfig
	Loan      LoanConfig
	WebSocket WebSocketConfig
	Log       LogConfig
	Features  FeatureFlags
}

type ServerConfig struct {
	Port            string
	Env             string
	Host            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the PostgreSQL audit mirror
type DatabaseConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Name           string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
	MaxIdleConns   int
	MaxLifetime    time.Duration
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	MinIdleConn int
	DialTimeout time.Duration
	ReadTimeout time.Duration
	ProfileTTL  time.Duration
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type NewRelicConfig struct {
	LicenseKey string
	AppName    string
	Enabled    bool
	LogLevel   string
}

// StripeConfig enables card payments when APIKey is set
type StripeConfig struct {
	APIKey   string
	Currency string
}

// PaymentConfig tunes the mobile money simulator
type PaymentConfig struct {
	SimulatorDelay       time.Duration
	SimulatorSuccessRate float64
	ChargeTimeout        time.Duration
}

type PricingConfig struct {
	BaseCost         float64
	PerKMRate        float64
	SemiUrgentBase   float64
	SemiUrgentPerKM  float64
	EmergencyBase    float64
	EmergencyPerKM   float64
	MaternalDiscount float64
	AverageSpeedKMH  float64
}

type DispatchConfig struct {
	EmergencyRadiusKM float64
	BrowseRadiusKM    float64
	MaxCandidates     int
}

type CreditConfig struct {
	RecentWindow    time.Duration
	CommunityPoints float64
	CommunityCap    float64
}

type LoanConfig struct {
	PaymentInterval time.Duration
	DefaultLoanType string
	OverdueSweep    time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type FeatureFlags struct {
	EnableEmergencyAutoAssign bool
	EnableRealTimeUpdates     bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("SERVER_ENV", "development"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: parseDuration(getEnv("SERVER_SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:        getEnvAsBool("DB_ENABLED", false),
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			Name:           getEnv("DB_NAME", "afya_transport"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
			MaxLifetime:    time.Duration(getEnvAsInt("DB_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:     getEnvAsBool("REDIS_ENABLED", false),
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			MaxRetries:  getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 50),
			MinIdleConn: 5,
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
			ProfileTTL:  time.Duration(getEnvAsInt("CACHE_TTL_CREDIT_PROFILE", 600)) * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:      getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:      getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:        getEnv("KAFKA_TOPIC", "afya.transport.events"),
			WriteTimeout: parseDuration(getEnv("KAFKA_WRITE_TIMEOUT", "5s"), 5*time.Second),
		},
		NewRelic: NewRelicConfig{
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			AppName:    getEnv("NEW_RELIC_APP_NAME", "Afya-Transport"),
			Enabled:    getEnvAsBool("NEW_RELIC_ENABLED", false),
			LogLevel:   getEnv("NEW_RELIC_LOG_LEVEL", "info"),
		},
		Stripe: StripeConfig{
			APIKey:   getEnv("STRIPE_API_KEY", ""),
			Currency: strings.ToLower(getEnv("STRIPE_CURRENCY", "kes")),
		},
		Payment: PaymentConfig{
			SimulatorDelay:       parseDuration(getEnv("PAYMENT_SIMULATOR_DELAY", "2s"), 2*time.Second),
			SimulatorSuccessRate: getEnvAsFloat64("PAYMENT_SIMULATOR_SUCCESS_RATE", 0.95),
			ChargeTimeout:        parseDuration(getEnv("PAYMENT_CHARGE_TIMEOUT", "30s"), 30*time.Second),
		},
		Pricing: PricingConfig{
			BaseCost:         getEnvAsFloat64("PRICING_BASE_COST", 300),
			PerKMRate:        getEnvAsFloat64("PRICING_PER_KM_RATE", 40),
			SemiUrgentBase:   getEnvAsFloat64("PRICING_SEMI_URGENT_BASE_MULTIPLIER", 1.2),
			SemiUrgentPerKM:  getEnvAsFloat64("PRICING_SEMI_URGENT_PER_KM_MULTIPLIER", 1.1),
			EmergencyBase:    getEnvAsFloat64("PRICING_EMERGENCY_BASE_MULTIPLIER", 1.5),
			EmergencyPerKM:   getEnvAsFloat64("PRICING_EMERGENCY_PER_KM_MULTIPLIER", 1.3),
			MaternalDiscount: getEnvAsFloat64("PRICING_MATERNAL_DISCOUNT", 0.9),
			AverageSpeedKMH:  getEnvAsFloat64("PRICING_AVERAGE_SPEED_KMH", 30),
		},
		Dispatch: DispatchConfig{
			EmergencyRadiusKM: getEnvAsFloat64("DISPATCH_EMERGENCY_RADIUS_KM", 15),
			BrowseRadiusKM:    getEnvAsFloat64("DISPATCH_BROWSE_RADIUS_KM", 10),
			MaxCandidates:     getEnvAsInt("DISPATCH_MAX_CANDIDATES", 20),
		},
		Credit: CreditConfig{
			RecentWindow:    time.Duration(getEnvAsInt("CREDIT_RECENT_WINDOW_DAYS", 90)) * 24 * time.Hour,
			CommunityPoints: getEnvAsFloat64("CREDIT_COMMUNITY_POINTS", 10),
			CommunityCap:    getEnvAsFloat64("CREDIT_COMMUNITY_CAP", 50),
		},
		Loan: LoanConfig{
			PaymentInterval: time.Duration(getEnvAsInt("LOAN_PAYMENT_INTERVAL_DAYS", 30)) * 24 * time.Hour,
			DefaultLoanType: getEnv("LOAN_DEFAULT_TYPE", "micro_loan"),
			OverdueSweep:    parseDuration(getEnv("LOAN_OVERDUE_SWEEP", "1h"), time.Hour),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Features: FeatureFlags{
			EnableEmergencyAutoAssign: getEnvAsBool("ENABLE_EMERGENCY_AUTO_ASSIGN", true),
			EnableRealTimeUpdates:     getEnvAsBool("ENABLE_REAL_TIME_UPDATES", true),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	if c.Database.Enabled && (strings.TrimSpace(c.Database.Host) == "" || strings.TrimSpace(c.Database.Name) == "") {
		return fmt.Errorf("DB_HOST and DB_NAME are required when DB_ENABLED is set")
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when KAFKA_ENABLED is set")
	}
	if c.Pricing.BaseCost < 0 || c.Pricing.PerKMRate < 0 {
		return fmt.Errorf("pricing rates must not be negative")
	}
	if c.Pricing.AverageSpeedKMH <= 0 {
		return fmt.Errorf("PRICING_AVERAGE_SPEED_KMH must be positive")
	}
	if c.Dispatch.EmergencyRadiusKM <= 0 || c.Dispatch.BrowseRadiusKM <= 0 {
		return fmt.Errorf("dispatch radii must be positive")
	}
	if c.Payment.SimulatorSuccessRate < 0 || c.Payment.SimulatorSuccessRate > 1 {
		return fmt.Errorf("PAYMENT_SIMULATOR_SUCCESS_RATE must be between 0 and 1")
	}
	if c.Loan.PaymentInterval <= 0 {
		return fmt.Errorf("LOAN_PAYMENT_INTERVAL_DAYS must be positive")
	}
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" && c.Server.Env == "production" {
		return fmt.Errorf("NEW_RELIC_LICENSE_KEY must be set in production when New Relic is enabled")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
