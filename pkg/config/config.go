// Package config defines and loads the server's option set (spec.md §6).
// Loading uses github.com/spf13/viper (contributed to this module's
// dependency graph by nabbar-golib, a large Go server codebase that leans
// on viper for exactly this kind of struct-shaped configuration). Parsing
// an actual CLI/.ini surface is explicitly out of scope (spec.md §1's
// Non-goals) — this package only defines the struct and loads it from
// environment variables; no configuration file is read.
package config

import (
	"crypto/tls"
	"time"

	"github.com/spf13/viper"

	"github.com/nullbyte-dev/evreactor/pkg/constants"
)

// Config mirrors the option set of spec.md §6.
type Config struct {
	ConnectionTimeout time.Duration
	CullOldSessionNum int
	DocumentRoot      string
	MaxCacheFileSize  int64
	MaxCacheFiles     int
	MaxIOLen          int
	MaxRequestLen     int64
	ServerName        string
	ServerPort        int
	SMTPPort          int
	IMAPPort          int
	GopherPort        int

	// TLS material; nil TLSConfig means TLS is not offered and only
	// HTTP/1.1 / h2c is served.
	TLSConfig        *tls.Config
	AllowSelfSigned  bool
	ALPNProtocols    []string
}

// Default returns a Config populated with spec.md §6's documented defaults.
func Default() *Config {
	return &Config{
		ConnectionTimeout: constants.DefaultConnectionTimeout,
		CullOldSessionNum: constants.DefaultCullOldSessionNum,
		DocumentRoot:      ".",
		MaxCacheFileSize:  constants.DefaultMaxCacheFileSize,
		MaxCacheFiles:     constants.DefaultMaxCacheFiles,
		MaxIOLen:          constants.DefaultMaxIOLen,
		MaxRequestLen:     constants.DefaultMaxRequestLen,
		ServerName:        constants.DefaultServerName,
		ALPNProtocols:     []string{"h2", "http/1.1"},
	}
}

// Load overlays environment-variable overrides (prefixed EVREACTOR_) onto
// the defaults using viper, returning the resulting Config. Unset keys keep
// their Default() value.
func Load() *Config {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("EVREACTOR")
	v.AutomaticEnv()

	v.SetDefault("connection_timeout", cfg.ConnectionTimeout)
	v.SetDefault("cull_old_session_num", cfg.CullOldSessionNum)
	v.SetDefault("document_root", cfg.DocumentRoot)
	v.SetDefault("max_cache_filesize", cfg.MaxCacheFileSize)
	v.SetDefault("max_cache_files", cfg.MaxCacheFiles)
	v.SetDefault("max_io_len", cfg.MaxIOLen)
	v.SetDefault("max_request_len", cfg.MaxRequestLen)
	v.SetDefault("server_name", cfg.ServerName)
	v.SetDefault("server_port", cfg.ServerPort)
	v.SetDefault("smtp_port", cfg.SMTPPort)
	v.SetDefault("imap_port", cfg.IMAPPort)
	v.SetDefault("gopher_port", cfg.GopherPort)

	cfg.ConnectionTimeout = v.GetDuration("connection_timeout")
	cfg.CullOldSessionNum = v.GetInt("cull_old_session_num")
	cfg.DocumentRoot = v.GetString("document_root")
	cfg.MaxCacheFileSize = v.GetInt64("max_cache_filesize")
	cfg.MaxCacheFiles = v.GetInt("max_cache_files")
	cfg.MaxIOLen = v.GetInt("max_io_len")
	cfg.MaxRequestLen = v.GetInt64("max_request_len")
	cfg.ServerName = v.GetString("server_name")
	cfg.ServerPort = v.GetInt("server_port")
	cfg.SMTPPort = v.GetInt("smtp_port")
	cfg.IMAPPort = v.GetInt("imap_port")
	cfg.GopherPort = v.GetInt("gopher_port")

	return cfg
}
