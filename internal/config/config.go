package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/keygate/backend/internal/domain"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port        int
	DatabaseURL string
	JWTSecret   string

	StripeSecretKey     string
	StripeWebhookSecret string

	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PriceRefs          map[string]string

	CORSOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, _ := strconv.Atoi(getEnv("PORT", "8080"))

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required (use \"memory\" for the in-process store)")
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	stripeKey := getEnv("STRIPE_SECRET_KEY", "")
	if stripeKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}

	webhookSecret := getEnv("STRIPE_WEBHOOK_SECRET", "")
	if webhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,https://keygate.app"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:                port,
		DatabaseURL:         dbURL,
		JWTSecret:           jwtSecret,
		StripeSecretKey:     stripeKey,
		StripeWebhookSecret: webhookSecret,
		CheckoutSuccessURL:  getEnv("CHECKOUT_SUCCESS_URL", "https://keygate.app/purchase/success"),
		CheckoutCancelURL:   getEnv("CHECKOUT_CANCEL_URL", "https://keygate.app/purchase/canceled"),
		PriceRefs: map[string]string{
			domain.LicenseStandard:   os.Getenv("STRIPE_PRICE_STANDARD"),
			domain.LicensePremium:    os.Getenv("STRIPE_PRICE_PREMIUM"),
			domain.LicenseEnterprise: os.Getenv("STRIPE_PRICE_ENTERPRISE"),
		},
		CORSOrigins: origins,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
