// Package vault provides durable key->bytes stores that hold the bookmark
// database snapshot.
package vault

import (
	"fmt"
	"strings"
)

// validateKey rejects keys that could escape the vault's namespace.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("vault key is empty")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid vault key %q", key)
	}
	return nil
}
