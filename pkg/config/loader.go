package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	mu     sync.Mutex
	loaded = make(map[reflect.Type]any)

	dotenvOnce sync.Once
)

// Load parses environment variables into the provided configuration struct
// based on its `env` field tags. Each configuration type is parsed at most
// once per process; subsequent calls for the same type return the cached
// value, so packages can declare their own config structs and load them
// independently without re-reading the environment.
//
// A .env file in the working directory is loaded once before the first
// parse. A missing .env file is not an error.
//
// Example:
//
//	type RegistryConfig struct {
//		ConnURL string `env:"REGISTRY_DB_URL,required"`
//	}
//
//	var cfg RegistryConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// The .env file is a development convenience; absence is fine.
		_ = godotenv.Load()
	})

	t := reflect.TypeOf(*v)

	mu.Lock()
	defer mu.Unlock()

	if cached, ok := loaded[t]; ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	// Store a copy so later mutations of the caller's struct do not leak
	// into the cache.
	loaded[t] = *v
	return nil
}

// MustLoad works like Load but panics on failure. Use it for configuration
// the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: failed to load %T: %v", v, err))
	}
}
