package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway
type Config struct {
	Server    ServerConfig
	Supabase  SupabaseConfig
	TenantDB  TenantDBConfig
	Email     EmailConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	RabbitMQ  RabbitMQConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	Environment   string        `mapstructure:"environment"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
}

// SupabaseConfig holds identity provider and central registry configuration.
// The service role key is used for registry reads, device persistence and
// admin user management; the anon key only for token verification.
type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	AnonKey        string `mapstructure:"anon_key"`
	ServiceRoleKey string `mapstructure:"service_role_key"`
	JWTSecret      string `mapstructure:"jwt_secret"`
}

// TenantDBConfig holds defaults applied when opening tenant databases
type TenantDBConfig struct {
	DefaultPort     int           `mapstructure:"default_port"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// EmailConfig holds the transactional email provider configuration.
// Missing credentials disable sending without failing callers.
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// SecurityConfig holds device-approval configuration
type SecurityConfig struct {
	// ConfirmURLBase is the base URL for device confirmation links.
	// When empty the link is derived from the request origin, falling
	// back to http://localhost:5173.
	ConfirmURLBase string `mapstructure:"confirm_url_base"`
	AppBaseURL     string `mapstructure:"app_base_url"`
}

// RateLimitConfig holds the default fixed-window quota
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

// RabbitMQConfig holds the optional audit stream configuration.
// An empty URL disables event publishing.
type RabbitMQConfig struct {
	URL           string `mapstructure:"url"`
	PrefetchCount int    `mapstructure:"prefetch_count"`
}

// Load loads configuration from environment and config files
func Load(serviceName string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DATAPAINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The original deployment configures these without the prefix.
	bindAliases(v)

	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/datapainel")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithValidation loads configuration and validates it for the current
// environment. Use this in main() for fail-fast behavior.
func LoadWithValidation(serviceName string) (*Config, error) {
	cfg, err := Load(serviceName)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return errors.New("SUPABASE_URL is required")
	}
	if c.Supabase.ServiceRoleKey == "" {
		return errors.New("SUPABASE_SERVICE_ROLE_KEY is required")
	}
	if c.Server.Environment == EnvProduction || c.Server.Environment == EnvStaging {
		if c.Email.ResendAPIKey == "" {
			return errors.New("RESEND_API_KEY must be set in " + c.Server.Environment)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.environment", EnvDevelopment)
	v.SetDefault("server.allowed_origin", "*")

	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.anon_key", "")
	v.SetDefault("supabase.service_role_key", "")
	v.SetDefault("supabase.jwt_secret", "")

	v.SetDefault("tenantdb.default_port", 5432)
	v.SetDefault("tenantdb.ssl_mode", "require")
	v.SetDefault("tenantdb.max_open_conns", 5)
	v.SetDefault("tenantdb.max_idle_conns", 2)
	v.SetDefault("tenantdb.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("tenantdb.query_timeout", 30*time.Second)

	v.SetDefault("email.resend_api_key", "")
	v.SetDefault("email.from", "Security <security@resend.dev>")

	v.SetDefault("security.confirm_url_base", "")
	v.SetDefault("security.app_base_url", "")

	v.SetDefault("ratelimit.window", 60*time.Second)
	v.SetDefault("ratelimit.max_requests", 60)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.prefetch_count", 10)
}

// bindAliases maps the original unprefixed environment variables onto viper
// keys so existing deployments keep working. The prefixed variable wins when
// both are set.
func bindAliases(v *viper.Viper) {
	replacer := strings.NewReplacer(".", "_")
	aliases := map[string]string{
		"supabase.url":              "SUPABASE_URL",
		"supabase.anon_key":         "SUPABASE_ANON_KEY",
		"supabase.service_role_key": "SUPABASE_SERVICE_ROLE_KEY",
		"supabase.jwt_secret":       "SUPABASE_JWT_SECRET",
		"tenantdb.default_port":     "CLIENT_DB_DEFAULT_PORT",
		"server.allowed_origin":     "FUNCTIONS_ALLOWED_ORIGIN",
		"email.resend_api_key":      "RESEND_API_KEY",
		"email.from":                "SECURITY_EMAIL_FROM",
		"security.confirm_url_base": "SECURITY_DEVICE_CONFIRM_URL",
		"security.app_base_url":     "APP_BASE_URL",
	}
	for key, env := range aliases {
		_ = v.BindEnv(key, "DATAPAINEL_"+strings.ToUpper(replacer.Replace(key)), env)
	}
}
