package core

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds runtime settings for the API process.
type Config struct {
	Env             string        // development|production|test
	Port            int           // HTTP listen port
	APIPrefix       string        // route prefix, e.g. "/api/v1"
	JWTSecret       string        // HS256 signing key
	JWTExpiresIn    time.Duration // token lifetime
	AdminUsername   string        // the single identity allowed to log in
	AdminPassword   string        // plain text; hashed once by BootstrapAdmin
	BcryptCost      int           // 0 means bcrypt.DefaultCost
	LogDir          string        // when set, logs are also appended to a file here
	LogLevel        string        // debug|info|warn|error
	SessionKey      string        // cookie signing key
	CookieSecure    bool          // Secure flag on the session cookie
	CookieSameSite  string        // Strict/Lax/None
	AllowedOrigins  []string      // CORS allow list; empty allows any origin outside production
	RateLimitMax    int           // requests per window per client
	RateLimitWindow time.Duration // window over which RateLimitMax is refilled
	RedisURL        string        // optional rate limit stats sink
	SeedFile        string        // optional YAML file with initial recados
	TrustedProxies  []string      // proxies allowed to set X-Forwarded-For; empty trusts none
	Database        DatabaseConfig
}

// DatabaseConfig is the PostgreSQL block validated by LoadWithDatabase.
type DatabaseConfig struct {
	Server   string
	Port     int
	Name     string
	User     string
	Password string
}

// IsProduction reports whether NODE_ENV=production.
func (c Config) IsProduction() bool { return c.Env == "production" }

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Load validates the process environment (as returned by os.Environ) against
// AppEnvSchema. The returned error is a *ConfigError listing every violation.
func Load(environ []string) (Config, error) {
	return load(environ, AppEnvSchema(), false)
}

// LoadWithDatabase is Load plus the required PostgreSQL variables.
func LoadWithDatabase(environ []string) (Config, error) {
	return load(environ, DatabaseProcessSchema(), true)
}

func load(environ []string, schema Schema, withDB bool) (Config, error) {
	v, err := schema.Validate(envToInput(environ))
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return Config{}, &ConfigError{Validation: ve}
		}
		return Config{}, err
	}

	cfg := Config{
		Env:             v[EnvNodeEnv].(string),
		Port:            v[EnvPort].(int),
		APIPrefix:       normalizePrefix(v[EnvAPIPrefix].(string)),
		JWTSecret:       v[EnvJWTSecret].(string),
		JWTExpiresIn:    v[EnvJWTExpiresIn].(time.Duration),
		AdminUsername:   v[EnvAdminUsername].(string),
		AdminPassword:   v[EnvAdminPassword].(string),
		LogDir:          stringOf(v, EnvLogDir),
		LogLevel:        v[EnvLogLevel].(string),
		SessionKey:      v[EnvSessionKey].(string),
		CookieSecure:    v[EnvCookieSecure].(bool),
		CookieSameSite:  v[EnvCookieSameSite].(string),
		AllowedOrigins:  parseCSV(stringOf(v, EnvAllowedOrigins)),
		RateLimitMax:    v[EnvRateLimitMax].(int),
		RateLimitWindow: v[EnvRateLimitWindow].(time.Duration),
		RedisURL:        stringOf(v, EnvRedisURL),
		SeedFile:        stringOf(v, EnvSeedFile),
		TrustedProxies:  parseCSV(stringOf(v, EnvTrustedProxies)),
	}
	if withDB {
		cfg.Database = DatabaseConfig{
			Server:   v[EnvPostgresServer].(string),
			Port:     v[EnvPostgresPort].(int),
			Name:     v[EnvPostgresDatabase].(string),
			User:     v[EnvPostgresUser].(string),
			Password: v[EnvPostgresPassword].(string),
		}
	}

	var errs []FieldError
	// bcrypt only looks at the first 72 bytes.
	if len(cfg.AdminPassword) > maxBcryptPasswordBytes {
		errs = append(errs, FieldError{Field: EnvAdminPassword, Message: fmt.Sprintf("%q must be at most %d bytes long", EnvAdminPassword, maxBcryptPasswordBytes)})
	}
	for _, p := range cfg.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				errs = append(errs, FieldError{Field: EnvTrustedProxies, Message: fmt.Sprintf("%q contains an invalid IP or CIDR: %s", EnvTrustedProxies, p)})
			}
		}
	}

	// Development defaults must not leak into production.
	if cfg.IsProduction() {
		if cfg.JWTSecret == defaultJWTSecret {
			errs = append(errs, FieldError{Field: EnvJWTSecret, Message: fmt.Sprintf("%q is required in production", EnvJWTSecret)})
		}
		if cfg.SessionKey == defaultSessionKey {
			errs = append(errs, FieldError{Field: EnvSessionKey, Message: fmt.Sprintf("%q is required in production", EnvSessionKey)})
		}
	}
	if len(errs) > 0 {
		return Config{}, &ConfigError{Validation: &ValidationError{Errors: errs}}
	}
	return cfg, nil
}

// DSN renders the database block as a postgres:// URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Server, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// PoolConfig parses DSN with pgx so malformed values fail before dialing.
func (d DatabaseConfig) PoolConfig() (*pgxpool.Config, error) {
	return pgxpool.ParseConfig(d.DSN())
}

// FormatConfigReport renders a startup diagnostic listing every violated field.
func FormatConfigReport(err error) string {
	const rule = "--------------------------------------------------------------------------------"
	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	b.WriteString("CONFIGURATION ERROR\n")
	b.WriteString(rule + "\n")
	b.WriteString("Check the environment variables passed to the process.\n\n")
	b.WriteString("Problems found:\n")

	var ve *ValidationError
	if errors.As(err, &ve) {
		for i, fe := range ve.Errors {
			fmt.Fprintf(&b, "   %d. %s: %s\n", i+1, fe.Field, fe.Message)
		}
	} else {
		fmt.Fprintf(&b, "   1. %v\n", err)
	}

	b.WriteString("\nMake sure that:\n")
	b.WriteString("   - every required variable is set\n")
	b.WriteString("   - values have the expected type\n")
	b.WriteString(rule + "\n")
	return b.String()
}

// envToInput turns KEY=VALUE pairs into a validator input. Empty values count as unset.
func envToInput(environ []string) map[string]any {
	out := make(map[string]any, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func stringOf(v map[string]any, key string) string {
	s, _ := v[key].(string)
	return s
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
