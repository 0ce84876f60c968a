// Package config loads and validates the service configuration from a
// YAML file, with API keys overridable through the environment.
package config
