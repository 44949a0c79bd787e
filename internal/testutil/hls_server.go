package testutil

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// HLSServer serves a generated M3U8 playlist plus N segments, with
// optional per-segment failure injection, following the teacher's
// functional-options configuration style for test servers.
type HLSServer struct {
	Server *httptest.Server

	SegmentCount  int
	SegmentBytes  []byte // content served for every segment (pre-encryption, if any)
	Encrypted     bool
	Key           []byte
	ExplicitIV    []byte // nil to omit IV= from the playlist

	FailSegmentOnce map[int]int // segment index -> status code to return exactly once
	FailRetryAfter  map[int]int // segment index -> Retry-After seconds sent alongside the failure

	mu          sync.Mutex
	failOnceHit map[int]bool
	reqCounts   map[int]*atomic.Int64
}

// HLSServerOption configures an HLSServer.
type HLSServerOption func(*HLSServer)

// WithSegmentCount sets the number of segments the playlist references.
func WithSegmentCount(n int) HLSServerOption {
	return func(s *HLSServer) { s.SegmentCount = n }
}

// WithSegmentBytes sets the bytes served for every segment before any
// encryption is applied.
func WithSegmentBytes(b []byte) HLSServerOption {
	return func(s *HLSServer) { s.SegmentBytes = b }
}

// WithEncryption enables AES-128 encryption of served segments using key,
// deriving each segment's IV the HLS way unless explicitIV is non-nil.
func WithEncryption(key, explicitIV []byte) HLSServerOption {
	return func(s *HLSServer) {
		s.Encrypted = true
		s.Key = key
		s.ExplicitIV = explicitIV
	}
}

// WithFailSegmentOnce makes segment index fail with status exactly once
// (the next request for it succeeds), to exercise the retry path.
func WithFailSegmentOnce(index, status int) HLSServerOption {
	return func(s *HLSServer) {
		if s.FailSegmentOnce == nil {
			s.FailSegmentOnce = make(map[int]int)
		}
		s.FailSegmentOnce[index] = status
	}
}

// WithFailSegmentOnceRetryAfter is WithFailSegmentOnce plus a Retry-After
// header (in seconds) on the failing response, to exercise the classifier's
// server-specified-delay path.
func WithFailSegmentOnceRetryAfter(index, status, retryAfterSeconds int) HLSServerOption {
	return func(s *HLSServer) {
		if s.FailSegmentOnce == nil {
			s.FailSegmentOnce = make(map[int]int)
		}
		if s.FailRetryAfter == nil {
			s.FailRetryAfter = make(map[int]int)
		}
		s.FailSegmentOnce[index] = status
		s.FailRetryAfter[index] = retryAfterSeconds
	}
}

// NewHLSServerT builds and starts an HLSServer, skipping the test if
// binding fails.
func NewHLSServerT(t *testing.T, opts ...HLSServerOption) *HLSServer {
	t.Helper()
	s := &HLSServer{
		SegmentCount: 3,
		SegmentBytes: []byte("0123456789abcdef"), // 16 bytes: one AES block
		failOnceHit:  make(map[int]bool),
		reqCounts:    make(map[int]*atomic.Int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/playlist.m3u8", s.handlePlaylist)
	mux.HandleFunc("/key.bin", s.handleKey)
	for i := 0; i < s.SegmentCount; i++ {
		s.reqCounts[i] = &atomic.Int64{}
	}
	mux.HandleFunc("/seg/", s.handleSegment)

	s.Server = NewHTTPServerT(t, mux)
	return s
}

// PlaylistURL returns the absolute URL of the generated playlist.
func (s *HLSServer) PlaylistURL() string {
	return s.Server.URL + "/playlist.m3u8"
}

func (s *HLSServer) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	if s.Encrypted {
		b.WriteString(fmt.Sprintf(`#EXT-X-KEY:METHOD=AES-128,URI="%s/key.bin"`, s.Server.URL))
		if s.ExplicitIV != nil {
			b.WriteString(fmt.Sprintf(",IV=0x%x", s.ExplicitIV))
		}
		b.WriteString("\n")
	}
	for i := 0; i < s.SegmentCount; i++ {
		b.WriteString("#EXTINF:6.0,\n")
		b.WriteString(fmt.Sprintf("%s/seg/%d.ts\n", s.Server.URL, i))
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, _ = w.Write([]byte(b.String()))
}

func (s *HLSServer) handleKey(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write(s.Key)
}

func (s *HLSServer) handleSegment(w http.ResponseWriter, r *http.Request) {
	var index int
	_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/seg/"), "%d.ts", &index)

	if c, ok := s.reqCounts[index]; ok {
		c.Add(1)
	}

	s.mu.Lock()
	if status, configured := s.FailSegmentOnce[index]; configured && !s.failOnceHit[index] {
		s.failOnceHit[index] = true
		retryAfter, hasRetryAfter := s.FailRetryAfter[index]
		s.mu.Unlock()
		if hasRetryAfter {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		}
		http.Error(w, "simulated failure", status)
		return
	}
	s.mu.Unlock()

	body := s.SegmentBytes
	if s.Encrypted {
		body = encryptForTest(body, s.Key, s.ivFor(index))
	}
	w.Header().Set("Content-Type", "video/mp2t")
	_, _ = w.Write(body)
}

func (s *HLSServer) ivFor(index int) []byte {
	if s.ExplicitIV != nil {
		return s.ExplicitIV
	}
	iv := make([]byte, 16)
	iv[15] = byte(index) // small test indices fit in the last byte
	return iv
}

// RequestCount returns how many times segment index was requested.
func (s *HLSServer) RequestCount(index int) int64 {
	if c, ok := s.reqCounts[index]; ok {
		return c.Load()
	}
	return 0
}

// Close shuts the server down.
func (s *HLSServer) Close() {
	if s.Server != nil {
		s.Server.Close()
	}
}

// encryptForTest AES-128-CBC encrypts plaintext under key/iv with PKCS7
// padding, mirroring the fixture helper in internal/crypto's tests — the
// server-side half of the same round trip the Engine decrypts on the way in.
func encryptForTest(plaintext, key, iv []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	padded := pkcs7PadForTest(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func pkcs7PadForTest(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}
