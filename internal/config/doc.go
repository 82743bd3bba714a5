// Package config loads the service configuration from defaults, an optional
// config file and RESOURCE_-prefixed environment variables, then validates it
// before any component starts. Storage, auth and rate limit settings each
// live in their own section.
package config
