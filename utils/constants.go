package utils

import (
	"time"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Request handling constants
const (
	// RequestTimeout bounds every API call, distribution included
	RequestTimeout = 30 * time.Second

	// ExportTimeout bounds spreadsheet exports
	ExportTimeout = 2 * time.Minute
)

type contextKey string

// Request context keys
const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
	AdminIDKey   contextKey = "admin_id"
)
