package domain

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable indica que o store de contadores não respondeu (rede, timeout).
// Nunca deve ser tratado como cota esgotada.
var ErrStorageUnavailable = errors.New("rate limit storage unavailable")

// ConfigError descreve um Profile inválido. É fatal na criação do limiter.
type ConfigError struct {
	Limiter string
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Limiter == "" {
		return fmt.Sprintf("invalid limiter profile: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid limiter profile %q: %s %s", e.Limiter, e.Field, e.Reason)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
