// Package config loads the message bus configuration.
//
// Values are resolved in three layers, later layers winning:
//
//  1. Defaults()
//  2. a YAML file (Load) or reader (Parse), unknown keys rejected
//  3. MSGBUS_* environment variables (FromEnv)
//
// Example file:
//
//	workers: 8
//	queue_capacity: 4096
//	hierarchy_cache_size: 1024
//	shutdown_timeout: 10s
//	log:
//	  level: debug
//	  format: console
package config
