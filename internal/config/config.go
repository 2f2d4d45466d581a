package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/eligibility/internal/platform/soap"
)

// Clearinghouse holds the endpoint and CORE credentials for one
// clearinghouse connection.
type Clearinghouse struct {
	Endpoint   string
	Username   string
	Password   string
	SenderID   string
	ReceiverID string
}

// Configured reports whether this clearinghouse can be used.
func (c Clearinghouse) Configured() bool {
	return c.Endpoint != "" && c.Username != ""
}

// Credentials converts the config block into SOAP envelope credentials.
func (c Clearinghouse) Credentials() soap.Credentials {
	return soap.Credentials{
		Username:   c.Username,
		Password:   c.Password,
		SenderID:   c.SenderID,
		ReceiverID: c.ReceiverID,
	}
}

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`

	// Submitting provider, echoed into every 270 (2100B loop).
	ProviderNPI   string `mapstructure:"PROVIDER_NPI"`
	ProviderName  string `mapstructure:"PROVIDER_NAME"`
	ProviderTaxID string `mapstructure:"PROVIDER_TAX_ID"`

	ClearinghouseTimeout time.Duration `mapstructure:"CLEARINGHOUSE_TIMEOUT"`

	OfficeAllyEndpoint   string `mapstructure:"OFFICE_ALLY_ENDPOINT"`
	OfficeAllyUsername   string `mapstructure:"OFFICE_ALLY_USERNAME"`
	OfficeAllyPassword   string `mapstructure:"OFFICE_ALLY_PASSWORD"`
	OfficeAllySenderID   string `mapstructure:"OFFICE_ALLY_SENDER_ID"`
	OfficeAllyReceiverID string `mapstructure:"OFFICE_ALLY_RECEIVER_ID"`

	UHINEndpoint   string `mapstructure:"UHIN_ENDPOINT"`
	UHINUsername   string `mapstructure:"UHIN_USERNAME"`
	UHINPassword   string `mapstructure:"UHIN_PASSWORD"`
	UHINSenderID   string `mapstructure:"UHIN_SENDER_ID"`
	UHINReceiverID string `mapstructure:"UHIN_RECEIVER_ID"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CLEARINGHOUSE_TIMEOUT", "30s")
	v.SetDefault("UHIN_ENDPOINT", "https://ws.uhin.org/webservices/core/soaptype4.asmx")
	v.SetDefault("UHIN_RECEIVER_ID", "HT000004-001")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"JWT_SIGNING_KEY",
		"PROVIDER_NPI", "PROVIDER_NAME", "PROVIDER_TAX_ID",
		"CLEARINGHOUSE_TIMEOUT",
		"OFFICE_ALLY_ENDPOINT", "OFFICE_ALLY_USERNAME", "OFFICE_ALLY_PASSWORD",
		"OFFICE_ALLY_SENDER_ID", "OFFICE_ALLY_RECEIVER_ID",
		"UHIN_ENDPOINT", "UHIN_USERNAME", "UHIN_PASSWORD",
		"UHIN_SENDER_ID", "UHIN_RECEIVER_ID",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// OfficeAlly returns the Office Ally clearinghouse block.
func (c *Config) OfficeAlly() Clearinghouse {
	return Clearinghouse{
		Endpoint:   c.OfficeAllyEndpoint,
		Username:   c.OfficeAllyUsername,
		Password:   c.OfficeAllyPassword,
		SenderID:   c.OfficeAllySenderID,
		ReceiverID: c.OfficeAllyReceiverID,
	}
}

// UHIN returns the UHIN clearinghouse block.
func (c *Config) UHIN() Clearinghouse {
	return Clearinghouse{
		Endpoint:   c.UHINEndpoint,
		Username:   c.UHINUsername,
		Password:   c.UHINPassword,
		SenderID:   c.UHINSenderID,
		ReceiverID: c.UHINReceiverID,
	}
}

// ActiveClearinghouse picks the first configured clearinghouse,
// preferring Office Ally. The eligibility service talks to exactly one
// realtime endpoint per deployment.
func (c *Config) ActiveClearinghouse() (Clearinghouse, error) {
	if oa := c.OfficeAlly(); oa.Configured() {
		return oa, nil
	}
	if uh := c.UHIN(); uh.Configured() {
		return uh, nil
	}
	return Clearinghouse{}, fmt.Errorf("no clearinghouse configured: set OFFICE_ALLY_* or UHIN_* credentials")
}

// Validate checks that the configuration is safe to run. Production
// requires a real signing key and a provider NPI for outbound 270s.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required in production")
	}
	if c.ProviderNPI == "" {
		return fmt.Errorf("PROVIDER_NPI is required")
	}
	if len(c.ProviderNPI) != 10 {
		return fmt.Errorf("PROVIDER_NPI must be 10 digits, got %q", c.ProviderNPI)
	}
	if c.ClearinghouseTimeout <= 0 {
		return fmt.Errorf("CLEARINGHOUSE_TIMEOUT must be positive, got %s", c.ClearinghouseTimeout)
	}
	if _, err := c.ActiveClearinghouse(); err != nil && c.IsProduction() {
		return err
	}
	return nil
}
