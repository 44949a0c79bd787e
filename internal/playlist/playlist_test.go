package playlist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_PlainThreeSegments(t *testing.T) {
	body := `#EXTM3U
#EXT-X-VERSION:3
#EXTINF:6.0,
https://cdn.example/a.ts
#EXTINF:6.0,
https://cdn.example/b.ts
#EXTINF:6.0,
https://cdn.example/c.ts
`
	pl, err := Parse(body, "https://cdn.example/p.m3u8")
	require.NoError(t, err)
	require.Nil(t, pl.Encryption)
	require.Equal(t, []string{
		"https://cdn.example/a.ts",
		"https://cdn.example/b.ts",
		"https://cdn.example/c.ts",
	}, pl.Segments)
}

func TestParse_EncryptedRelativeSegments(t *testing.T) {
	body := `#EXTM3U
#EXT-X-KEY:METHOD=AES-128,URI="https://cdn.example/k.bin"
#EXTINF:6.0,
s0.ts
#EXTINF:6.0,
s1.ts
#EXTINF:6.0,
s2.ts
#EXTINF:6.0,
s3.ts
`
	pl, err := Parse(body, "https://cdn.example/p.m3u8")
	require.NoError(t, err)
	require.NotNil(t, pl.Encryption)
	require.Equal(t, "AES-128", pl.Encryption.Method)
	require.Equal(t, "https://cdn.example/k.bin", pl.Encryption.KeyURL)
	require.Nil(t, pl.Encryption.IV)
	require.Len(t, pl.Segments, 4)
	require.Equal(t, "https://cdn.example/s0.ts", pl.Segments[0])
}

func TestParse_ExplicitIV(t *testing.T) {
	body := "#EXTM3U\n" +
		`#EXT-X-KEY:METHOD=AES-128,URI="k.bin",IV=0x00112233445566778899aabbccddeeff` + "\n" +
		"a.ts\n"
	pl, err := Parse(body, "https://cdn.example/p.m3u8")
	require.NoError(t, err)
	require.Len(t, pl.Encryption.IV, 16)
	require.Equal(t, byte(0x00), pl.Encryption.IV[0])
	require.Equal(t, byte(0xff), pl.Encryption.IV[15])
}

func TestParse_NoSegmentsIsAnError(t *testing.T) {
	_, err := Parse("#EXTM3U\n#EXT-X-VERSION:3\n", "https://cdn.example/p.m3u8")
	require.ErrorIs(t, err, ErrNoSegments)
}

func TestBestVariant_PicksHighestBandwidth(t *testing.T) {
	body := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000
high/index.m3u8
`
	v, err := BestVariant(body, "https://cdn.example/master.m3u8")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/high/index.m3u8", v)
}

func TestIsMasterPlaylist(t *testing.T) {
	require.True(t, IsMasterPlaylist("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nv.m3u8\n"))
	require.False(t, IsMasterPlaylist("#EXTM3U\na.ts\n"))
}
