// Package config loads and validates rapidkrill's TOML configuration.
//
// Load resolves the config path (explicit flag, then the user config dir,
// then a project-local rapidkrill.toml), decodes it over the defaults,
// normalizes paths, and validates. Validation failures are configuration
// errors: the process must exit with a diagnostic before entering any loop.
package config
