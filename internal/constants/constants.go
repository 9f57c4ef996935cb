package constants

// Package constants provides shared constants for the OAuth2 introspect proxy

const (
	// Headers attached to the upstream request after a pass decision.
	ClientIDHeader  = "X-OAuth-Client-Id"
	PayloadHeader   = "X-OAuth-Payload"
	RequestIDHeader = "X-Request-Id"
)

const DefaultConfigPath = "config.yaml"
