package doccache

import (
	"strconv"
	"strings"
)

// LatestVersion is the sentinel stored in cache keys when a caller did not
// pin a crate version.
const LatestVersion = "latest"

// Key is the normalized identity of one lookup. Two invocations that differ
// only in formatting the domain treats as equivalent (crate-name casing,
// surrounding whitespace, repeated spaces in a query) map to the same Key.
type Key string

// CrateKey identifies a crate-level documentation lookup.
func CrateKey(name, version string) Key {
	return Key("crate\x00" + normalizeCrate(name) + "\x00" + normalizeVersion(version))
}

// ItemKey identifies an item-level documentation lookup.
func ItemKey(name, itemPath, version string) Key {
	return Key("item\x00" + normalizeCrate(name) + "\x00" + normalizeVersion(version) + "\x00" + NormalizeItemPath(itemPath))
}

// SearchKey identifies a crate search. The limit is part of the identity
// and must already be clamped by the caller.
func SearchKey(query string, limit int) Key {
	return Key("search\x00" + normalizeQuery(query) + "\x00" + strconv.Itoa(limit))
}

// normalizeCrate lowercases and trims a crate name. The registry treats
// crate names case-insensitively.
func normalizeCrate(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeVersion(version string) string {
	v := strings.TrimSpace(version)
	if v == "" {
		return LatestVersion
	}
	return v
}

// NormalizeItemPath trims whitespace and stray path separators from a
// Rust item path such as "tokio::sync::Mutex". Segment casing is
// significant (types and modules differ only by case) and is preserved.
func NormalizeItemPath(itemPath string) string {
	p := strings.TrimSpace(itemPath)
	return strings.Trim(p, ":")
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
