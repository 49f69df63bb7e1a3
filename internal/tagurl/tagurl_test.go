package tagurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackops/internal/ndef"
)

func TestRoundTrip(t *testing.T) {
	bases := []string{"https://www.scrapyard.dev", "https://host", "https://host/", "https://h.example/org/"}
	ids := []int{0, 1, 7, 42, 1000000, 2147483647}
	for _, base := range bases {
		for _, id := range ids {
			msg, err := ndef.EncodeURI(Build(base, id))
			require.NoError(t, err)

			uri, ok := ndef.DecodeURI(msg)
			require.True(t, ok)

			got, ok := ExtractID(uri)
			require.True(t, ok, uri)
			assert.Equal(t, id, got)
		}
	}
}

func TestBuild(t *testing.T) {
	assert.Equal(t, "https://host/users/42", Build("https://host", 42))
	assert.Equal(t, "https://host/users/42", Build("https://host/", 42))
}

func TestExtractID_Rejects(t *testing.T) {
	tests := []string{
		"",
		"user_123",
		"https://host/users/",
		"https://host/users/abc",
		"https://host/users/42/",
		"https://host/users/42?x=1",
		"https://host/users/-4",
		"http://host/users/42",
		"ftp://host/users/42",
		"https:///users/42",
		"https://host/members/42",
		"https://host/users/99999999999999999999999",
		"https://ho st/users/42",
	}
	for _, url := range tests {
		t.Run(url, func(t *testing.T) {
			id, ok := ExtractID(url)
			assert.False(t, ok)
			assert.Zero(t, id)
		})
	}
}

func TestExtractID_Accepts(t *testing.T) {
	id, ok := ExtractID("https://www.scrapyard.dev/users/42")
	require.True(t, ok)
	assert.Equal(t, 42, id)

	id, ok = ExtractID("https://host/a/b/users/007")
	require.True(t, ok)
	assert.Equal(t, 7, id)
}

func TestValidateBase(t *testing.T) {
	for _, base := range []string{"https://www.scrapyard.dev", "https://host/", "https://h.example/org"} {
		assert.NoError(t, ValidateBase(base), base)
	}
	for _, base := range []string{"", "http://www.scrapyard.dev", "www.scrapyard.dev", "https://", "https://host?x=1", "https://host/#top", "https://ho st"} {
		assert.ErrorIs(t, ValidateBase(base), ErrBadBase, base)
	}
}
