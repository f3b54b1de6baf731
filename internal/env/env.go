//go:build !js || !wasm

package env

import "os"

// Get returns a process environment variable. Empty counts as unset.
func Get(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}
