// Package configuration handles the reading of generic Unix-type
// configuration files and the operational settings of the application
// itself (system file locations, timeouts, identity fallbacks).
package configuration

import (
	"strconv"
	"time"
)

type genericConfigProvider interface {
	Read(filenames ...string) (envMap map[string]string, err error)
}

// Handler is the principal implementation of the configuration methods.
type Handler struct {
	genericHandler genericConfigProvider
}

// NewHandler returns a pointer to a new configuration [Handler].
func NewHandler(genericHandler genericConfigProvider) *Handler {
	return &Handler{
		genericHandler: genericHandler,
	}
}

// ReadGeneric reads generic Unix-type configuration files into a map.
func (c *Handler) ReadGeneric(filenames ...string) (map[string]string, error) {
	return c.genericHandler.Read(filenames...)
}

// MapKeyToString returns a key's value as string, or empty when unset.
func (c *Handler) MapKeyToString(envMap map[string]string, key string) string {
	if value, exists := envMap[key]; exists {
		return value
	}

	return ""
}

// MapKeyToInt returns a key's value as int, or -1 when unset or unparseable.
func (c *Handler) MapKeyToInt(envMap map[string]string, key string) int {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return -1
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}

	return intValue
}

// MapKeyToDuration returns a key's value as [time.Duration], or zero when
// unset or unparseable.
func (c *Handler) MapKeyToDuration(envMap map[string]string, key string) time.Duration {
	value := c.MapKeyToString(envMap, key)
	if value == "" {
		return 0
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}

	return duration
}
