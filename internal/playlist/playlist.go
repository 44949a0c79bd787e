// Package playlist parses the HLS media-playlist subset this module
// consumes: segment references and the AES-128 key directive. The
// directive-by-directive scan and URL-resolution approach is grounded on
// the regex-based #EXT-X-KEY parsing in the m3u8_downloader reference
// (other_examples/vizshrc-m3u8-downloader__m3u8_downloader.go), reworked
// into an explicit line-prefix scan so every field (METHOD, URI, IV) is
// validated rather than best-effort-matched.
package playlist

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Encryption describes the #EXT-X-KEY directive for a playlist, if any.
type Encryption struct {
	Method string
	KeyURL string
	IV     []byte // nil when no explicit IV was present
}

// Playlist is the parsed, resolved result of C8.
type Playlist struct {
	Segments   []string
	Encryption *Encryption
}

var (
	keyURIRe = regexp.MustCompile(`URI="([^"]*)"`)
	keyIVRe  = regexp.MustCompile(`IV=0[xX]([0-9a-fA-F]+)`)
	keyMethodRe = regexp.MustCompile(`METHOD=([^,]+)`)
	bandwidthRe = regexp.MustCompile(`BANDWIDTH=(\d+)`)
)

// ErrNoSegments is returned when a playlist body contains zero segment
// references, which the spec treats as a parse-time failure.
var ErrNoSegments = errors.New("playlist: no segments found")

// Parse parses playlist body text against baseURL (the playlist's own
// absolute URL, used to resolve relative segment and key URIs).
//
// Master playlists (bodies containing #EXT-X-STREAM-INF) are not expanded
// here; callers should detect that case themselves via IsMasterPlaylist
// and resolve a variant URL before calling Parse again, mirroring the
// master-playlist recursion in the MGter-hls_downloader reference.
func Parse(body string, baseURL string) (*Playlist, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("playlist: invalid base url: %w", err)
	}

	pl := &Playlist{}
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-KEY:") {
			enc, err := parseKeyDirective(line, base)
			if err != nil {
				return nil, err
			}
			pl.Encryption = enc
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		pl.Segments = append(pl.Segments, resolve(base, line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("playlist: scan error: %w", err)
	}

	if len(pl.Segments) == 0 {
		return nil, ErrNoSegments
	}
	return pl, nil
}

// IsMasterPlaylist reports whether body is a variant (master) playlist
// rather than a media playlist.
func IsMasterPlaylist(body string) bool {
	return strings.Contains(body, "#EXT-X-STREAM-INF")
}

// BestVariant returns the absolute URL of the highest-BANDWIDTH variant
// named in a master playlist body, resolved against baseURL.
func BestVariant(body string, baseURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("playlist: invalid base url: %w", err)
	}

	lines := strings.Split(body, "\n")
	var best string
	var bestBandwidth int64 = -1

	for i, line := range lines {
		if !strings.Contains(line, "#EXT-X-STREAM-INF") {
			continue
		}
		m := bandwidthRe.FindStringSubmatch(line)
		if m == nil || i+1 >= len(lines) {
			continue
		}
		bw, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		variant := strings.TrimSpace(lines[i+1])
		if variant == "" || strings.HasPrefix(variant, "#") {
			continue
		}
		if bw > bestBandwidth {
			bestBandwidth = bw
			best = variant
		}
	}

	if best == "" {
		return "", errors.New("playlist: no variant found in master playlist")
	}
	return resolve(base, best), nil
}

func parseKeyDirective(line string, base *url.URL) (*Encryption, error) {
	m := keyMethodRe.FindStringSubmatch(line)
	if m == nil {
		return nil, errors.New("playlist: #EXT-X-KEY missing METHOD")
	}
	method := strings.TrimSpace(m[1])

	u := keyURIRe.FindStringSubmatch(line)
	if u == nil {
		return nil, errors.New("playlist: #EXT-X-KEY missing URI")
	}

	enc := &Encryption{
		Method: method,
		KeyURL: resolve(base, u[1]),
	}

	if iv := keyIVRe.FindStringSubmatch(line); iv != nil {
		raw := iv[1]
		if len(raw)%2 != 0 {
			raw = "0" + raw
		}
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("playlist: invalid IV: %w", err)
		}
		if len(decoded) != 16 {
			return nil, fmt.Errorf("playlist: IV must be 16 bytes, got %d", len(decoded))
		}
		enc.IV = decoded
	}

	return enc, nil
}

func resolve(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
