package services

import "strings"

// NormalizeHandle trims whitespace and leading '@' characters and lowercases
// the rest, so "@Alice" and "alice" compare equal.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(handle), "@"))
}
