// Package config loads and validates the service configuration from YAML,
// with environment-variable overrides for secrets.
package config
