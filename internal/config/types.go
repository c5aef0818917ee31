package config

import "time"

// Config holds all auctionbridge configuration.
type Config struct {
	RPCURLs     []string `json:"rpc_urls"     validate:"required,min=1,dive,url"`
	RPCStrategy string   `json:"rpc_strategy" validate:"oneof=failover fastest"`
	CacheTTL    int      `json:"cache_ttl"    validate:"gte=0"` // seconds, 0 disables

	Marketplace      string `json:"marketplace_contract" validate:"omitempty,len=66,hexadecimal"`
	PaymentToken     string `json:"payment_token"        validate:"omitempty,len=66,hexadecimal"`
	WithdrawContract string `json:"withdraw_contract"    validate:"omitempty,len=66,hexadecimal"`
	DefaultAccount   string `json:"default_account"      validate:"omitempty,len=66,hexadecimal"`

	TokenDecimals int32  `json:"token_decimals" validate:"gte=0,lte=36"`
	DomainTag     string `json:"domain_tag"     validate:"required,printascii,max=64"`
	SigningKey    string `json:"signing_key"    validate:"required"` // keychain entry name
	WithdrawTTL   int    `json:"withdraw_ttl"   validate:"gte=1,lte=3600"` // seconds
	SweepInterval int    `json:"sweep_interval" validate:"gte=1"`          // seconds
	SweepGrace    int    `json:"sweep_grace"    validate:"gte=0"`          // seconds

	DB DBConfig `json:"db"`

	ListenAddr     string   `json:"listen_addr"     validate:"required,hostname_port"`
	AllowedOrigins []string `json:"allowed_origins"`
	LogLevel       string   `json:"log_level"       validate:"oneof=debug info warn error"`

	// internal: config dir path used for Save()
	configDir string
}

// DBConfig selects the ledger backend.
type DBConfig struct {
	Driver string `json:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `json:"dsn"` // empty means ledger.db in the config dir (sqlite only)
}

func (c *Config) CacheTTLDuration() time.Duration      { return seconds(c.CacheTTL) }
func (c *Config) WithdrawTTLDuration() time.Duration   { return seconds(c.WithdrawTTL) }
func (c *Config) SweepIntervalDuration() time.Duration { return seconds(c.SweepInterval) }
func (c *Config) SweepGraceDuration() time.Duration    { return seconds(c.SweepGrace) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
