package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var AppEnv Config

type Config struct {
	Port     string
	LogLevel string

	StoreDriver string
	MongoURI    string
	DBName      string

	KVDriver      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string

	Currency         string
	TaxName          string
	TaxRate          decimal.Decimal
	CategoryTaxRates map[string]decimal.Decimal
	PricesIncludeTax bool
	ShippingTaxFree  bool

	FlatRateEnabled  bool
	FlatRateAmount   int64
	FlatRateFreeOver int64
	FlatRateName     string
	GramsPerUnit     int
	CarrierName      string
	CarrierURL       string
	CarrierAPIKey    string
	OriginCountry    string

	PaymentURL       string
	PaymentAPIKey    string
	PaymentSecret    string
	PublicBaseURL    string
	LinkSecret       string
	ResultLinkTTL    time.Duration
	PaymentErrorPage string

	HTTPTimeout time.Duration
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = Config{
		Port:     getEnvOrDefault("PORT", "8080"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		StoreDriver: getEnvOrDefault("STORE_DRIVER", "mongo"),
		MongoURI:    getEnvOrDefault("MONGO_URI", ""),
		DBName:      getEnvOrDefault("DB_NAME", "storefront"),

		KVDriver:      getEnvOrDefault("KV_DRIVER", "redis"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getListEnv("KAFKA_BROKERS"),
		KafkaTopic:   getEnvOrDefault("KAFKA_TOPIC", "storefront.orders"),

		JWTSecret: getEnvOrDefault("JWT_SECRET", ""),

		Currency:         strings.ToUpper(getEnvOrDefault("CURRENCY", "TRY")),
		TaxName:          getEnvOrDefault("TAX_NAME", "KDV"),
		TaxRate:          getDecimalEnv("TAX_RATE", "0.20"),
		CategoryTaxRates: getRateMapEnv("CATEGORY_TAX_RATES"),
		PricesIncludeTax: getBoolEnv("PRICES_INCLUDE_TAX", false),
		ShippingTaxFree:  getBoolEnv("SHIPPING_TAX_EXEMPT", false),

		FlatRateEnabled:  getBoolEnv("FLAT_RATE_ENABLED", true),
		FlatRateAmount:   int64(getIntEnv("FLAT_RATE_AMOUNT", 3000)),
		FlatRateFreeOver: int64(getIntEnv("FLAT_RATE_FREE_OVER", 0)),
		FlatRateName:     getEnvOrDefault("FLAT_RATE_NAME", "Standard"),
		GramsPerUnit:     getIntEnv("GRAMS_PER_UNIT", 500),
		CarrierName:      getEnvOrDefault("CARRIER_NAME", "carrier"),
		CarrierURL:       getEnvOrDefault("CARRIER_URL", ""),
		CarrierAPIKey:    getEnvOrDefault("CARRIER_API_KEY", ""),
		OriginCountry:    strings.ToUpper(getEnvOrDefault("ORIGIN_COUNTRY", "TR")),

		PaymentURL:       getEnvOrDefault("PAYMENT_URL", ""),
		PaymentAPIKey:    getEnvOrDefault("PAYMENT_API_KEY", ""),
		PaymentSecret:    getEnvOrDefault("PAYMENT_SECRET", ""),
		PublicBaseURL:    strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LinkSecret:       getEnvOrDefault("LINK_SECRET", ""),
		ResultLinkTTL:    getDurationEnv("RESULT_LINK_TTL", 30, time.Minute),
		PaymentErrorPage: getEnvOrDefault("PAYMENT_ERROR_PAGE", "/payment/error"),

		HTTPTimeout: getDurationEnv("HTTP_TIMEOUT", 10, time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getDecimalEnv(key, defaultValue string) decimal.Decimal {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil && !parsed.IsNegative() {
			return parsed
		}
		log.Println("invalid decimal for", key, "using default")
	}
	return decimal.RequireFromString(defaultValue)
}

// getRateMapEnv parses "books=0,food=0.01" into per-category tax rates.
func getRateMapEnv(key string) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, pair := range getListEnv(key) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil || rate.IsNegative() {
			log.Println("invalid tax rate for category", k)
			continue
		}
		out[strings.TrimSpace(k)] = rate
	}
	return out
}
