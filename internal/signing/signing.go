// Package signing implements the hash-based message authentication scheme
// shared with the Xunhupay gateway. Both outbound requests and inbound
// notifications carry an md5 digest over the sorted non-empty parameters
// with the shared secret appended.
package signing

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

const hashKey = "hash"

// Sign computes the signature over params. The "hash" key and parameters
// with empty values never contribute to the digest. Remaining keys are
// sorted bytewise ascending, rendered as key=value joined by "&", with the
// raw secret appended directly after the last value.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == hashKey || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
	}
	sb.WriteString(secret)

	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the signature over params (the "hash" entry, if any, is
// ignored) and compares it byte for byte against the claimed digest.
func Verify(params map[string]string, claimed, secret string) bool {
	return Sign(params, secret) == claimed
}
