package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (or an env-file loaded by the process runner).
// Engine code receives the typed sections, never raw environment variables.
type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Auth        AuthConfig
	CallControl CallControlConfig
	Locks       LockConfig
}

type AppConfig struct {
	Env  string
	Port int
	// LogLevel overrides the environment's default level when set.
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CallControlConfig configures the call-control provider boundary.
//
// ConnectionID and CallerID are optional at boot: attended transfers fail with
// a missing-configuration error when they are absent, everything else keeps working.
type CallControlConfig struct {
	APIURL string
	APIKey string

	// ConnectionID is the outbound call-control application used for consult dials.
	ConnectionID string
	// CallerID is the fixed outbound caller id for consult dials (E.164).
	CallerID string

	HoldMusicURL string
	// HoldPlaybackLeg selects which leg carries hold music: "agent" plays on the
	// agent leg toward the opposite (customer) side, "customer" plays on the customer leg itself.
	HoldPlaybackLeg string

	// SIPDomain is used to rewrite short internal extensions into SIP URIs.
	SIPDomain string

	Timeout time.Duration
	RPS     float64
	Burst   int

	WebhookSecret string
}

type LockConfig struct {
	AgentLockTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.CallControl.APIURL = strings.TrimSpace(os.Getenv("CALL_CONTROL_API_URL"))
	c.CallControl.APIKey = os.Getenv("CALL_CONTROL_API_KEY")
	c.CallControl.ConnectionID = strings.TrimSpace(os.Getenv("CALL_CONTROL_CONNECTION_ID"))
	c.CallControl.CallerID = strings.TrimSpace(os.Getenv("CALL_CONTROL_CALLER_ID"))
	c.CallControl.HoldMusicURL = strings.TrimSpace(os.Getenv("HOLD_MUSIC_URL"))
	c.CallControl.HoldPlaybackLeg = strings.TrimSpace(os.Getenv("HOLD_PLAYBACK_LEG"))
	c.CallControl.SIPDomain = strings.TrimSpace(os.Getenv("SIP_DOMAIN"))
	c.CallControl.Timeout = mustDuration("CALL_CONTROL_TIMEOUT")
	c.CallControl.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	{
		f, err := optionalFloat("CALL_CONTROL_RPS")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.CallControl.RPS = f
	}
	{
		n, err := optionalInt("CALL_CONTROL_BURST")
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		c.CallControl.Burst = n
	}

	c.Locks.AgentLockTTL = mustDuration("AGENT_LOCK_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and applies defaults for optional ones.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.CallControl.APIURL == "" {
		c.CallControl.APIURL = "https://api.telnyx.com/v2"
	}
	if c.CallControl.APIKey == "" {
		errs = append(errs, errors.New("CALL_CONTROL_API_KEY is required"))
	}
	if c.CallControl.HoldPlaybackLeg == "" {
		c.CallControl.HoldPlaybackLeg = HoldPlaybackAgent
	}
	if c.CallControl.HoldPlaybackLeg != HoldPlaybackAgent && c.CallControl.HoldPlaybackLeg != HoldPlaybackCustomer {
		errs = append(errs, fmt.Errorf("HOLD_PLAYBACK_LEG must be one of agent, customer, got %q", c.CallControl.HoldPlaybackLeg))
	}
	if c.CallControl.Timeout <= 0 {
		c.CallControl.Timeout = 10 * time.Second
	}
	if c.CallControl.RPS <= 0 {
		c.CallControl.RPS = 10
	}
	if c.CallControl.Burst <= 0 {
		c.CallControl.Burst = 20
	}
	if c.IsProduction() && c.CallControl.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required in production"))
	}

	if c.Locks.AgentLockTTL <= 0 {
		c.Locks.AgentLockTTL = 15 * time.Second
	}

	return joinErrors(errs)
}

const (
	HoldPlaybackAgent    = "agent"
	HoldPlaybackCustomer = "customer"
)

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
