package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_Credentials(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		in   string
		want string
	}{
		{"mount failed password=hunter2", "mount failed password=***"},
		{"PWD=abc rest", "pwd=*** rest"},
		{"header Bearer eyJhbGciOi", "header bearer ***"},
		{"api-key=xyz token=t0k", "api_key=*** token=***"},
		{"renamed /data/a.txt", "renamed /data/a.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Sanitize(tt.in))
	}
}

func TestSanitize_HomeIsOptIn(t *testing.T) {
	msg := `scan /home/alice/photos and /Users/bob/Pictures and C:\Users\carol\docs`

	assert.Equal(t, msg, NewSanitizer().Sanitize(msg))
	assert.Equal(t,
		`scan /home/***/photos and /Users/***/Pictures and ***:\Users\***\docs`,
		NewSanitizer().WithHomeRedaction().Sanitize(msg))
}

func TestSanitizeArgs(t *testing.T) {
	s := NewSanitizer()
	in := []any{
		"path", "/data/token=abc",
		"api_key", "0123456789",
		"Auth", "short",
		"count", 3,
		"dangling",
	}

	out := s.SanitizeArgs(in)

	assert.Equal(t, []any{
		"path", "/data/token=abc",
		"api_key", "0***9",
		"Auth", "s***",
		"count", 3,
		"dangling",
	}, out)
	assert.Equal(t, "0123456789", in[3], "input must not be modified")
	assert.Empty(t, s.SanitizeArgs(nil))
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "***", maskValue("ab"))
	assert.Equal(t, "a***", maskValue("abcdefgh"))
	assert.Equal(t, "a***i", maskValue("abcdefghi"))
}

func TestAddRule(t *testing.T) {
	s := NewSanitizer()
	require.NoError(t, s.AddRule(`run-[0-9a-f]{8}`, "run-********"))
	assert.Equal(t, "lock held by run-********", s.Sanitize("lock held by run-0f8fad5b"))

	assert.Error(t, s.AddRule(`(`, ""))
}

func TestSanitizeArgs_HomeRedaction(t *testing.T) {
	s := NewSanitizer().WithHomeRedaction()

	out := s.SanitizeArgs([]any{"path", "/home/alice/a.txt", "renamed", 2, "token", "abcdefghij"})

	assert.Equal(t, []any{"path", "/home/***/a.txt", "renamed", 2, "token", "a***j"}, out)
}
