package config

import "time"

// Environment variables layered over config.json.
const (
	EnvConfigDir  = "AUCTIONBRIDGE_CONFIG_DIR"
	EnvRPCURLs    = "AUCTIONBRIDGE_RPC_URLS" // comma separated
	EnvDBDriver   = "AUCTIONBRIDGE_DB_DRIVER"
	EnvDBDSN      = "AUCTIONBRIDGE_DB_DSN"
	EnvListenAddr = "AUCTIONBRIDGE_LISTEN_ADDR"
	EnvLogLevel   = "AUCTIONBRIDGE_LOG_LEVEL"
)

// Timeouts used across cmd and the API server.
const (
	QueryTimeout      = 30 * time.Second // one CLI query including dial
	ReadHeaderTimeout = 5 * time.Second
	ShutdownTimeout   = 10 * time.Second
)
