package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration loading
var (
	ErrMissingToken      = goerr.New("slack bot token is not configured")
	ErrUnsupportedFormat = goerr.New("unsupported config file format")
	ErrInvalidLogLevel   = goerr.New("invalid log level")
	ErrInvalidLogFormat  = goerr.New("invalid log format")
)

// Context keys for error values
const (
	ConfigPathKey = "config_path"
	LogLevelKey   = "log_level"
	LogFormatKey  = "log_format"
	LogOutputKey  = "log_output"
)
