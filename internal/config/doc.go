// Package config handles configuration loading for chatgirl-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHATGIRL_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/chatgirl/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	provider:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	limits:
//	  rate_interval: "1h"
//	  session_ttl: "30m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # websocket surface and health endpoint
//
// Provider selection and credentials:
//
//	provider:
//	  active: "chatgpt-web"       # or "openai"
//	  system_prompt: "You are a helpful assistant."
//	  chatgpt_web:
//	    base_url: "https://chat.openai.com"
//	    session_cookie: "${CHATGPT_SESSION_COOKIE}"
//	    model: "text-davinci-002-render"
//	  openai:
//	    base_url: "https://api.openai.com"
//	    api_key: "${OPENAI_API_KEY}"
//	    model: "text-chat-davinci-002-20221122"
//
// Rate limiting and session expiry:
//
//	limits:
//	  rate_limit: 20          # requests per sender per interval, 0 disables
//	  rate_interval: "1h"
//	  session_ttl: "30m"
//
// Admission queue tuning:
//
//	dispatch:
//	  queue_notify_threshold: 5
//	  queue_hard_ceiling: 10  # defaults to twice the notify threshold
//
// Database:
//
//	database:
//	  path: "/var/lib/chatgirl/gateway.db"
//
// Notice templates (empty fields keep the defaults):
//
//	templates:
//	  rate_limited: "Slow down a little."
//	  error_notice: "Something broke: %v"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a specific path:
//
//	cfg, err := config.Load("/etc/chatgirl/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
