package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"settlement/internal/currency"
	"settlement/internal/vat"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Log        LogConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Live       LiveConfig
	Worker     WorkerConfig
	Processor  ProcessorConfig
	Settlement Settlement
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type DatabaseConfig struct {
	Driver   string // postgres or memory
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Seed     bool
}

type JWTConfig struct {
	Secret string
}

type LogConfig struct {
	Level      string
	Format     string // json or text
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type LiveConfig struct {
	Debounce  time.Duration
	KeepAlive time.Duration
}

type WorkerConfig struct {
	PaymentSweepInterval time.Duration
}

// ProcessorConfig names the checkout processor and the token its webhook
// calls must carry. An empty token disables the check.
type ProcessorConfig struct {
	Name         string
	WebhookToken string
}

// Settlement carries the runtime switches of the settlement core. It is passed
// explicitly to every service constructor instead of being read globally.
type Settlement struct {
	ShopCountry       vat.Country
	VatSingleCountry  bool
	MainCurrency      currency.Code
	ReferenceCurrency currency.Code

	// LockItemsAfterPrint forbids removing or shrinking lines already sent to the kitchen.
	LockItemsAfterPrint bool
	PrintHistoryLimit   int

	PaymentExpiry time.Duration

	CashDeltaJustificationMandatory bool
	CashDeltaTolerance              decimal.Decimal
}

// DefaultSettlement returns the settlement switches used when nothing is configured.
func DefaultSettlement() Settlement {
	return Settlement{
		ShopCountry:       "CH",
		MainCurrency:      currency.CHF,
		ReferenceCurrency: currency.CHF,
		PrintHistoryLimit: 30,
		PaymentExpiry:     2 * time.Hour,
	}
}

func Load() *Config {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	viper.AutomaticEnv()

	viper.SetDefault("APP_NAME", "settlement-api")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "postgres")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SEED", false)
	viper.SetDefault("JWT_SECRET", "default_super_secret_key")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("LOG_FILE", "logs/app.log")
	viper.SetDefault("LOG_MAX_SIZE_MB", 100)
	viper.SetDefault("LOG_MAX_BACKUPS", 5)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 30)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("LIVE_DEBOUNCE", "1s")
	viper.SetDefault("LIVE_KEEPALIVE", "15s")
	viper.SetDefault("PAYMENT_SWEEP_INTERVAL", "1m")
	viper.SetDefault("PROCESSOR_NAME", "terminal")
	viper.SetDefault("PROCESSOR_WEBHOOK_TOKEN", "")
	viper.SetDefault("SHOP_COUNTRY", "CH")
	viper.SetDefault("VAT_SINGLE_COUNTRY", false)
	viper.SetDefault("MAIN_CURRENCY", "CHF")
	viper.SetDefault("REFERENCE_CURRENCY", "CHF")
	viper.SetDefault("LOCK_ITEMS_AFTER_PRINT", false)
	viper.SetDefault("PRINT_HISTORY_LIMIT", 30)
	viper.SetDefault("PAYMENT_EXPIRY", "2h")
	viper.SetDefault("CASH_DELTA_JUSTIFICATION_MANDATORY", false)
	viper.SetDefault("CASH_DELTA_TOLERANCE", "0")

	return &Config{
		App: AppConfig{
			Name: viper.GetString("APP_NAME"),
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetString("PORT"),
		},
		Database: DatabaseConfig{
			Driver:   viper.GetString("DB_DRIVER"),
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
			Seed:     viper.GetBool("DB_SEED"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		Log: LogConfig{
			Level:      viper.GetString("LOG_LEVEL"),
			Format:     viper.GetString("LOG_FORMAT"),
			File:       viper.GetString("LOG_FILE"),
			MaxSizeMB:  viper.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: viper.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: viper.GetInt("LOG_MAX_AGE_DAYS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:             viper.GetInt("RATE_LIMIT_BURST"),
		},
		Live: LiveConfig{
			Debounce:  viper.GetDuration("LIVE_DEBOUNCE"),
			KeepAlive: viper.GetDuration("LIVE_KEEPALIVE"),
		},
		Worker: WorkerConfig{
			PaymentSweepInterval: viper.GetDuration("PAYMENT_SWEEP_INTERVAL"),
		},
		Processor: ProcessorConfig{
			Name:         viper.GetString("PROCESSOR_NAME"),
			WebhookToken: viper.GetString("PROCESSOR_WEBHOOK_TOKEN"),
		},
		Settlement: loadSettlement(),
	}
}

func loadSettlement() Settlement {
	s := DefaultSettlement()

	if country, err := vat.ParseCountry(viper.GetString("SHOP_COUNTRY")); err == nil {
		s.ShopCountry = country
	} else {
		log.Printf("Invalid SHOP_COUNTRY, keeping %s: %v", s.ShopCountry, err)
	}
	if code, err := currency.Parse(viper.GetString("MAIN_CURRENCY")); err == nil {
		s.MainCurrency = code
	} else {
		log.Printf("Invalid MAIN_CURRENCY, keeping %s: %v", s.MainCurrency, err)
	}
	if code, err := currency.Parse(viper.GetString("REFERENCE_CURRENCY")); err == nil {
		s.ReferenceCurrency = code
	} else {
		log.Printf("Invalid REFERENCE_CURRENCY, keeping %s: %v", s.ReferenceCurrency, err)
	}
	if tolerance, err := decimal.NewFromString(viper.GetString("CASH_DELTA_TOLERANCE")); err == nil {
		s.CashDeltaTolerance = tolerance.Abs()
	}

	s.VatSingleCountry = viper.GetBool("VAT_SINGLE_COUNTRY")
	s.LockItemsAfterPrint = viper.GetBool("LOCK_ITEMS_AFTER_PRINT")
	s.CashDeltaJustificationMandatory = viper.GetBool("CASH_DELTA_JUSTIFICATION_MANDATORY")
	if limit := viper.GetInt("PRINT_HISTORY_LIMIT"); limit > 0 {
		s.PrintHistoryLimit = limit
	}
	if expiry := viper.GetDuration("PAYMENT_EXPIRY"); expiry > 0 {
		s.PaymentExpiry = expiry
	}
	return s
}

// DSN builds the postgres connection URL
func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
