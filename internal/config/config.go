package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/auth"
)

// DevOwnerAddress is the first well-known local development account. Its
// private key is public, so it must never own a shared deployment.
const DevOwnerAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

// Config holds all configuration for the market server
type Config struct {
	// Server settings
	ServerPort string
	CORSOrigin string
	LogLevel   string
	LogFormat  string // "console" or "json"

	// Accounts and contracts. A PrivateKey overrides OwnerAddress.
	PrivateKey     string
	OwnerAddress   string
	FactoryAddress string
	TokenAddress   string

	// Market settings, in token units
	MinBetUnits         uint64
	SeedLiquidityUnits  uint64
	MintSupplyUnits     uint64
	SeedDefaultProjects bool

	SessionTTL            time.Duration
	OddsBroadcastInterval time.Duration

	// Optional persistence; empty keeps the journal in memory
	DatabaseURL string
}

// Load reads configuration from the environment, after loading .env if present
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "console"),

		PrivateKey:     getEnv("PRIVATE_KEY", ""),
		OwnerAddress:   getEnv("OWNER_ADDRESS", DevOwnerAddress),
		FactoryAddress: getEnv("FACTORY_ADDRESS", "0x5b2A05072262B0f9E934d144DB114B59220a46b4"),
		TokenAddress:   getEnv("TOKEN_ADDRESS", "0x20C000000000000000000000033aBB6ac7D235e5"),

		MinBetUnits:         getEnvUint64("MIN_BET_UNITS", 1_000_000),
		SeedLiquidityUnits:  getEnvUint64("SEED_LIQUIDITY_UNITS", 100_000_000),
		MintSupplyUnits:     getEnvUint64("MINT_SUPPLY_UNITS", 1_000_000_000_000),
		SeedDefaultProjects: getEnvBool("SEED_DEFAULT_PROJECTS", true),

		SessionTTL:            getEnvDuration("SESSION_TTL", 24*time.Hour),
		OddsBroadcastInterval: getEnvDuration("ODDS_BROADCAST_INTERVAL", 10*time.Second),

		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if _, err := strconv.ParseUint(c.ServerPort, 10, 16); err != nil {
		errs = append(errs, fmt.Errorf("SERVER_PORT %q is not a port", c.ServerPort))
	}
	if _, err := c.Owner(); err != nil {
		errs = append(errs, err)
	} else if c.UsesPublicDevOwner() {
		log.Warn().Str("owner", DevOwnerAddress).
			Msg("owner is the public development account; set PRIVATE_KEY or OWNER_ADDRESS before exposing this server")
	}
	if !common.IsHexAddress(c.FactoryAddress) {
		errs = append(errs, fmt.Errorf("FACTORY_ADDRESS %q is not an address", c.FactoryAddress))
	}
	if !common.IsHexAddress(c.TokenAddress) {
		errs = append(errs, fmt.Errorf("TOKEN_ADDRESS %q is not an address", c.TokenAddress))
	}
	if c.MinBetUnits == 0 {
		errs = append(errs, errors.New("MIN_BET_UNITS must be positive"))
	}
	if c.SeedLiquidityUnits == 0 {
		errs = append(errs, errors.New("SEED_LIQUIDITY_UNITS must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.OddsBroadcastInterval <= 0 {
		errs = append(errs, errors.New("ODDS_BROADCAST_INTERVAL must be positive"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be console or json", c.LogFormat))
	}

	if c.SeedDefaultProjects {
		// the default catalog funds both pools of every project
		need := 2 * c.SeedLiquidityUnits * uint64(defaultProjectCount)
		if c.MintSupplyUnits < need {
			errs = append(errs, fmt.Errorf("MINT_SUPPLY_UNITS %d cannot fund the default projects (%d)", c.MintSupplyUnits, need))
		}
	}

	return errors.Join(errs...)
}

// Owner returns the factory owner and settlement authority
func (c *Config) Owner() (common.Address, error) {
	if c.PrivateKey != "" {
		signer, err := auth.NewSigner(c.PrivateKey)
		if err != nil {
			return common.Address{}, fmt.Errorf("PRIVATE_KEY: %w", err)
		}
		return signer.Address(), nil
	}
	if !common.IsHexAddress(c.OwnerAddress) {
		return common.Address{}, fmt.Errorf("OWNER_ADDRESS %q is not an address", c.OwnerAddress)
	}
	return common.HexToAddress(c.OwnerAddress), nil
}

// UsesPublicDevOwner reports whether the owner falls back to DevOwnerAddress
func (c *Config) UsesPublicDevOwner() bool {
	return c.PrivateKey == "" && strings.EqualFold(c.OwnerAddress, DevOwnerAddress)
}

// defaultProjectCount mirrors market.DefaultProjects
const defaultProjectCount = 12

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if u, err := strconv.ParseUint(strings.ReplaceAll(value, "_", ""), 10, 64); err == nil {
			return u
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid integer, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid boolean, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using default")
	}
	return defaultValue
}
