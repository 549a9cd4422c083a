// Package config loads typed configuration structs from environment
// variables.
//
// Each package owning configuration declares its own struct with `env` tags
// and calls Load (or MustLoad for configuration the process cannot run
// without). Parsing happens once per struct type; repeated loads are served
// from an in-process cache, which keeps startup deterministic when several
// subsystems share a config type.
//
//	var cfg tenantdb.Config
//	config.MustLoad(&cfg)
package config
