package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHost(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                                 "",
		"Example.COM:443":                  "example.com",
		" example.com. ":                   "example.com",
		"[2001:db8::1]:8443":               "2001:db8::1",
		"2001:db8::1":                      "2001:db8::1",
		"localhost:10443":                  "localhost",
		"https://Feed.Example.com:443/v1":  "feed.example.com",
		"http://feed.example.com/?x=1":     "feed.example.com",
		"https://[2001:db8::1]:10443/feed": "2001:db8::1",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHost(in), "input %q", in)
	}
}
