//go:build js && wasm

package env

import "github.com/syumai/workers/cloudflare"

// Get returns a Workers environment variable or secret. Empty counts as unset.
func Get(key string) (string, bool) {
	value := cloudflare.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}
