// Package config provides configuration types and loading for the
// reverse proxy.
//
// This package defines the configuration model, YAML loading with
// environment variable substitution, validation, and file watching.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Configuration validation with detailed error reporting
//   - File watching to detect edits to the configuration on disk
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("proxy.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// The route table is read once at process start. A Watcher reports edits
// to the file but the running route table is never replaced; a restart is
// required for route changes to take effect.
package config
