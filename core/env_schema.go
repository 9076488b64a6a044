package core

// Environment variable names.
const (
	EnvNodeEnv         = "NODE_ENV"
	EnvPort            = "PORT"
	EnvAPIPrefix       = "API_PREFIX"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiresIn    = "JWT_EXPIRES_IN"
	EnvAdminUsername   = "ADMIN_USERNAME"
	EnvAdminPassword   = "ADMIN_PASSWORD"
	EnvLogDir          = "LOG_DIR"
	EnvLogLevel        = "LOG_LEVEL"
	EnvSessionKey      = "SESSION_KEY"
	EnvCookieSecure    = "COOKIE_SECURE"
	EnvCookieSameSite  = "COOKIE_SAMESITE"
	EnvAllowedOrigins  = "ALLOWED_ORIGINS"
	EnvRateLimitMax    = "RATE_LIMIT_MAX"
	EnvRateLimitWindow = "RATE_LIMIT_WINDOW"
	EnvRedisURL        = "REDIS_URL"
	EnvSeedFile        = "SEED_FILE"
	EnvTrustedProxies  = "TRUSTED_PROXIES"

	EnvPostgresServer   = "POSTGRESQL_SERVER"
	EnvPostgresPort     = "POSTGRESQL_PORT"
	EnvPostgresDatabase = "POSTGRESQL_DATABASE"
	EnvPostgresUser     = "POSTGRESQL_USER"
	EnvPostgresPassword = "POSTGRESQL_PASSWORD"
)

const (
	defaultJWTSecret  = "change-this-jwt-secret"
	defaultSessionKey = "change-this-session-key"
)

// AppEnvSchema covers everything the API process reads. Other process
// variables (PATH, HOME, ...) are stripped.
func AppEnvSchema() Schema {
	return Schema{
		Unknown: UnknownStrip,
		Fields: []Field{
			{Name: EnvNodeEnv, Kind: KindString, OneOf: []string{"development", "production", "test"}, Default: "development"},
			{Name: EnvPort, Kind: KindInt, Min: limit(1), Max: limit(65535), Default: 3000},
			{Name: EnvAPIPrefix, Kind: KindString, Default: "/api/v1"},
			{Name: EnvJWTSecret, Kind: KindString, Min: limit(8), Default: defaultJWTSecret},
			{Name: EnvJWTExpiresIn, Kind: KindDuration, Default: "24h"},
			{Name: EnvAdminUsername, Kind: KindString, Min: limit(3), Max: limit(30), Default: "admin"},
			{Name: EnvAdminPassword, Kind: KindString, Min: limit(6), Max: limit(72), Default: "admin123"},
			{Name: EnvLogDir, Kind: KindString},
			{Name: EnvLogLevel, Kind: KindString, OneOf: []string{"debug", "info", "warn", "error"}, Default: "info"},
			{Name: EnvSessionKey, Kind: KindString, Min: limit(16), Default: defaultSessionKey},
			{Name: EnvCookieSecure, Kind: KindBool, Default: false},
			{Name: EnvCookieSameSite, Kind: KindString, OneOf: []string{"Strict", "Lax", "None"}, Default: "Strict"},
			{Name: EnvAllowedOrigins, Kind: KindString},
			{Name: EnvRateLimitMax, Kind: KindInt, Min: limit(1), Default: 100},
			{Name: EnvRateLimitWindow, Kind: KindDuration, Default: "15m"},
			{Name: EnvRedisURL, Kind: KindString},
			{Name: EnvSeedFile, Kind: KindString},
			{Name: EnvTrustedProxies, Kind: KindString},
		},
	}
}

// DatabaseEnvSchema is the PostgreSQL block checked by the envcheck demo.
func DatabaseEnvSchema() Schema {
	return Schema{
		Unknown: UnknownStrip,
		Fields: []Field{
			{Name: EnvPostgresServer, Kind: KindString, Required: true},
			{Name: EnvPostgresPort, Kind: KindInt, Required: true, Min: limit(1), Max: limit(65535)},
			{Name: EnvPostgresDatabase, Kind: KindString, Required: true},
			{Name: EnvPostgresUser, Kind: KindString, Required: true},
			{Name: EnvPostgresPassword, Kind: KindString, Required: true},
		},
	}
}

// DatabaseProcessSchema is AppEnvSchema plus DatabaseEnvSchema, with NODE_ENV
// required instead of defaulted.
func DatabaseProcessSchema() Schema {
	return AppEnvSchema().merge(DatabaseEnvSchema()).require(EnvNodeEnv)
}

// require returns a copy of s where name must be present and has no default.
func (s Schema) require(name string) Schema {
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Required = true
			fields[i].Default = nil
		}
	}
	return Schema{Fields: fields, Unknown: s.Unknown}
}

// merge returns a schema with the fields of both; the receiver's unknown policy wins.
func (s Schema) merge(other Schema) Schema {
	fields := make([]Field, 0, len(s.Fields)+len(other.Fields))
	fields = append(fields, s.Fields...)
	fields = append(fields, other.Fields...)
	return Schema{Fields: fields, Unknown: s.Unknown}
}
