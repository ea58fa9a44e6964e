package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	JWTPublicKey string
	OTLPEndpoint string

	GatewayBaseURL string
	GatewayTimeout time.Duration

	CommissionRate       decimal.Decimal
	VATRate              decimal.Decimal
	PlatformFee          decimal.Decimal
	PartnerIncentive     decimal.Decimal
	DefaultMinIncrement  decimal.Decimal
	EnforceTradingWindow bool

	ReconcileInterval time.Duration
	ReconcileMinAge   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	gatewayTimeout, _ := time.ParseDuration(os.Getenv("GATEWAY_TIMEOUT"))
	if gatewayTimeout == 0 {
		gatewayTimeout = 10 * time.Second
	}
	reconcileInterval, _ := time.ParseDuration(os.Getenv("RECONCILE_INTERVAL"))
	if reconcileInterval == 0 {
		reconcileInterval = time.Minute
	}
	reconcileMinAge, _ := time.ParseDuration(os.Getenv("RECONCILE_MIN_AGE"))
	if reconcileMinAge == 0 {
		reconcileMinAge = 5 * time.Minute
	}

	return &Config{
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		JWTPublicKey: os.Getenv("JWT_PUBLIC_KEY"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		GatewayBaseURL: os.Getenv("GATEWAY_BASE_URL"),
		GatewayTimeout: gatewayTimeout,

		CommissionRate:       decimalEnv("COMMISSION_RATE", "0.05"),
		VATRate:              decimalEnv("VAT_RATE", "0.15"),
		PlatformFee:          decimalEnv("PLATFORM_FEE", "500"),
		PartnerIncentive:     decimalEnv("PARTNER_INCENTIVE", "0"),
		DefaultMinIncrement:  decimalEnv("DEFAULT_MIN_INCREMENT", "500"),
		EnforceTradingWindow: os.Getenv("ENFORCE_TRADING_WINDOW") == "true",

		ReconcileInterval: reconcileInterval,
		ReconcileMinAge:   reconcileMinAge,
	}, nil
}

func decimalEnv(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(fallback)
	return d
}
