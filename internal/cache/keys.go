package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// recordNamespace separates record keys from response keys.
const recordNamespace = "plugin:"

// KeyFor fingerprints a remote query. Parameters are encoded in sorted key
// order so the same logical query always produces the same key.
func KeyFor(path string, params url.Values) string {
	sum := sha256.Sum256([]byte(path + "?" + params.Encode()))
	return hex.EncodeToString(sum[:])
}

// KeyForRecord fingerprints a plugin record by slug only, so a record
// written by the sync walk and one filled by a point lookup share a key.
func KeyForRecord(slug string) string {
	sum := sha256.Sum256([]byte(recordNamespace + slug))
	return hex.EncodeToString(sum[:])
}
