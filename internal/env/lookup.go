package env

import (
	"fmt"
	"time"
)

// GetOrDefault returns the variable or defaultValue when it is unset.
func GetOrDefault(key, defaultValue string) string {
	if value, ok := Get(key); ok {
		return value
	}
	return defaultValue
}

// Duration parses the variable as a time.Duration, falling back to
// defaultValue when it is unset.
func Duration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := Get(key)
	if !ok {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, value)
	}
	return d, nil
}
