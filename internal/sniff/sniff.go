// Package sniff provides a best-effort content sniff on a decrypted
// segment, grounded on the teacher's use of h2non/filetype to validate
// completed downloads look like what they claim to be. This is advisory
// only: an unrecognized segment is logged, never rejected, since HLS
// segments (especially encrypted ones that failed to decrypt under the
// spec's degraded-mode fallback) are not guaranteed to match a known
// file-type signature.
package sniff

import (
	"github.com/h2non/filetype"
)

// Describe returns a short human-readable guess at what buf looks like,
// or "" when filetype has no match.
func Describe(buf []byte) string {
	kind, err := filetype.Match(buf)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}
