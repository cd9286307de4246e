package utils

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstructURL(t *testing.T) {
	assert.Equal(t, "https://relay.example.com/join/x", ConstructURL("https", "relay.example.com:443", "/join/x"))
	assert.Equal(t, "http://localhost:8080/join/x", ConstructURL("http", "localhost:8080", "join/x"))
	assert.Equal(t, "http://host/a", ConstructURL("http", "host", "/a"))
}

func TestPublicURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://10.0.0.5:8080/api/sessions", nil)
	assert.Equal(t, "http://10.0.0.5:8080/join/abc", PublicURL(r, "", "/join/abc"))
	assert.Equal(t, "https://qr.example.com/join/abc", PublicURL(r, "https://qr.example.com/", "join/abc"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https", GetScheme(r))

	r.TLS = &tls.ConnectionState{}
	r.Header.Del("X-Forwarded-Proto")
	assert.Equal(t, "https", GetScheme(r))
}

func TestIsStandardPort(t *testing.T) {
	assert.True(t, IsStandardPort("http", "80"))
	assert.True(t, IsStandardPort("https", "443"))
	assert.False(t, IsStandardPort("http", "443"))
}

func TestExtractSessionID(t *testing.T) {
	id := "6f1c2a9e-2b7d-4c3e-9a51-0d2f4b6c8e10"
	assert.Equal(t, id, ExtractSessionID(id))
	assert.Equal(t, id, ExtractSessionID("https://relay.example.com/join/"+id))
	assert.Equal(t, id, ExtractSessionID("http://localhost:8080/join/"+id+"/"))
	assert.Equal(t, "https://relay.example.com", BaseURL("https://relay.example.com/join/"+id))
	assert.Equal(t, "", BaseURL(id))
}

func TestNormalizeServerURL(t *testing.T) {
	u, skip := NormalizeServerURL("localhost:8080/")
	assert.Equal(t, "http://localhost:8080", u)
	assert.False(t, skip)

	u, skip = NormalizeServerURL("https://localhost:8443")
	assert.Equal(t, "https://localhost:8443", u)
	assert.True(t, skip)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(-time.Second))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "4m05s", FormatDuration(4*time.Minute+5*time.Second))

	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KiB", FormatBytes(1536))
	assert.Equal(t, "10.0 MiB", FormatBytes(10<<20))

	assert.Contains(t, FormatLog("", "upload", 201, "cat.png"), "✅")
	assert.Contains(t, FormatLog("", "upload", 413, "big.png"), "❌")
}
