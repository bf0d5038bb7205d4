package sanitize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlaintext(t *testing.T) {
	t.Parallel()
	p := NewPolicy()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "only whitespace", input: "  \t\n  ", want: ""},
		{name: "simple", input: "hello world", want: "hello world"},
		{name: "ampersand kept", input: "Fees & levies", want: "Fees & levies"},
		{name: "bold", input: "**Fees** are due", want: "Fees are due"},
		{name: "inline code", input: "Dial `*334#` now", want: "Dial *334# now"},
		{name: "heading and paragraph", input: "# Fees\n\nDue on Monday", want: "Fees\n\nDue on Monday"},
		{name: "bullet list", input: "- PP1\n- Grade 4", want: "• PP1\n• Grade 4"},
		{name: "soft line break", input: "line one\nline two", want: "line one\nline two"},
		{name: "extra spaces", input: "too    many   spaces", want: "too many spaces"},
		{name: "zero width", input: "pay\u200bnow", want: "paynow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, p.Plaintext(tt.input))
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	require.Equal(t, "a\n\nb", normalize("a\r\n\r\n\r\n\r\nb"))
	require.Equal(t, "x y", normalize("  x  y  "))
}
