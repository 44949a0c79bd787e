package cmd

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveOutputName(t *testing.T) {
	cases := map[string]string{
		"https://cdn.example.com/videos/episode-1.m3u8": "episode-1.mp4",
		"https://cdn.example.com/videos/episode-1/":      "episode-1.mp4",
		"https://cdn.example.com/stream":                 "stream.mp4",
		"": "output.mp4",
	}
	for in, want := range cases {
		assert.Equal(t, want, deriveOutputName(in), "input %q", in)
	}
}

func TestAppDirOrTemp_ReturnsNonEmptyPath(t *testing.T) {
	assert.NotEmpty(t, appDirOrTemp())
}

func TestBuildProvider_NilWhenBothEmpty(t *testing.T) {
	assert.Nil(t, buildProvider("", ""))
}

func TestBuildProvider_CarriesRefererAndUserAgent(t *testing.T) {
	p := buildProvider("https://example.com/watch", "hlsdl-custom/2.0")
	require.NotNil(t, p)

	h := p.HeadersFor(&url.URL{Scheme: "https", Host: "cdn.example.com"})
	assert.Equal(t, "https://example.com/watch", h["Referer"])
	assert.Equal(t, "hlsdl-custom/2.0", h["User-Agent"])
}

func TestBuildProvider_UserAgentOnly(t *testing.T) {
	p := buildProvider("", "hlsdl-custom/2.0")
	require.NotNil(t, p)

	h := p.HeadersFor(&url.URL{Scheme: "https", Host: "cdn.example.com"})
	assert.Equal(t, "hlsdl-custom/2.0", h["User-Agent"])
	assert.NotContains(t, h, "Referer")
}
