// Package cachekey derives result cache keys from a tenant, an object and a
// normalized transform spec.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"imagegen/models"
)

// version is bumped whenever the encoding of transform output changes so old
// entries stop matching.
const version = "v1"

const sep = "|"

// Derive returns the canonical key for (tenant, object, spec).
//
// Fields appear in a fixed order. String fields are path-escaped and any
// remaining separator is percent-encoded, so no value can forge a boundary.
// Unset numbers render as "-", never as "0".
func Derive(tenantID, objectKey string, spec models.TransformSpec) string {
	var b strings.Builder
	b.Grow(64 + len(tenantID) + len(objectKey))
	b.WriteString("imagegen:")
	b.WriteString(version)
	field(&b, "t", escape(tenantID))
	field(&b, "o", escape(objectKey))
	field(&b, "w", spec.Width.String())
	field(&b, "h", spec.Height.String())
	field(&b, "q", spec.Quality.String())
	if spec.Greyscale {
		field(&b, "g", "1")
	} else {
		field(&b, "g", "0")
	}
	field(&b, "f", spec.Format.String())
	return b.String()
}

// DeriveHashed returns a fixed-length SHA-256 form of Derive for stores that
// limit key length.
func DeriveHashed(tenantID, objectKey string, spec models.TransformSpec) string {
	sum := sha256.Sum256([]byte(Derive(tenantID, objectKey, spec)))
	return hex.EncodeToString(sum[:])
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(sep)
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)
}

func escape(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), sep, "%7C")
}
