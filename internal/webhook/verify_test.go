package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	body := []byte(`{"type":"page.created","entity":{"id":"abc"}}`)
	sig := Sign("s3cret", body)

	require.True(t, strings.HasPrefix(sig, "sha256="))
	require.Len(t, sig, len("sha256=")+64)
	assert.True(t, Verify("s3cret", sig, body))
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()
	body := []byte(`{"type":"page.updated"}`)
	good := Sign("s3cret", body)

	mutated := []byte(good)
	last := len(mutated) - 1
	if mutated[last] == '0' {
		mutated[last] = '1'
	} else {
		mutated[last] = '0'
	}

	tests := []struct {
		name   string
		secret string
		header string
		body   []byte
	}{
		{name: "wrong secret", secret: "other", header: good, body: body},
		{name: "missing header", secret: "s3cret", header: "", body: body},
		{name: "single byte mutation", secret: "s3cret", header: string(mutated), body: body},
		{name: "body changed", secret: "s3cret", header: good, body: []byte(`{"type":"page.deleted"}`)},
		{name: "no prefix", secret: "s3cret", header: strings.TrimPrefix(good, "sha256="), body: body},
		{name: "garbage", secret: "s3cret", header: "sha256=zz", body: body},
	}
	for _, tt := range tests {
		if Verify(tt.secret, tt.header, tt.body) {
			t.Fatalf("%s: Verify returned true", tt.name)
		}
	}
}

func TestVerifyEmptyBody(t *testing.T) {
	t.Parallel()
	assert.True(t, Verify("k", Sign("k", nil), []byte{}))
}

func TestMaskSignature(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{in: "", want: ""},
		{in: "short", want: "short"},
		{in: strings.Repeat("a", 24), want: strings.Repeat("a", 24)},
		{in: "sha256=0123456789abcdef0123456789abcdef", want: "sha256=01234...456789abcdef"},
	}
	for _, tt := range tests {
		if got := MaskSignature(tt.in); got != tt.want {
			t.Fatalf("MaskSignature(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractVerificationToken(t *testing.T) {
	t.Parallel()
	tok, ok := ExtractVerificationToken([]byte(`{"verification_token":"abc"}`))
	require.True(t, ok)
	assert.Equal(t, "abc", tok)

	for _, body := range []string{``, `not json`, `[]`, `{"verification_token":42}`, `{"type":"page.created"}`} {
		if _, ok := ExtractVerificationToken([]byte(body)); ok {
			t.Fatalf("ExtractVerificationToken(%q) reported a token", body)
		}
	}
}
