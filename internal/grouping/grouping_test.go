package grouping

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hexSHA256 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"digits", "User 123 not found", "User X not found"},
		{"digits inside identifiers", "order_42 failed after 3 retries", "order_X failed after X retries"},
		{"single quotes", "Cannot read property 'map' of undefined", "Cannot read property 'X' of undefined"},
		{"double quotes", `Unknown column "email" in table`, `Unknown column "X" in table`},
		{"backticks", "Template `hello ${name}` failed", "Template `X` failed"},
		{"empty quotes kept", "Expected '' got nothing", "Expected '' got nothing"},
		{"trim", "  spaced out  ", "spaced out"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMessage(tt.in))
		})
	}
}

func TestNormalizeMessage_LiteralsGroupTogether(t *testing.T) {
	a := NormalizeMessage(`Timeout after 3000ms calling "payments" for user 17`)
	b := NormalizeMessage(`Timeout after 150ms calling "ledger" for user 90210`)
	assert.Equal(t, a, b)
}

func TestFingerprint_Deterministic(t *testing.T) {
	fp1 := Fingerprint("TypeError", "Cannot read property 'X' of undefined", "app.js", "x")
	fp2 := Fingerprint("TypeError", "Cannot read property 'X' of undefined", "app.js", "x")
	assert.Equal(t, fp1, fp2)
	assert.Regexp(t, hexSHA256, fp1)
}

func TestFingerprint_MatchesSHA256OfJoinedFields(t *testing.T) {
	sum := sha256.Sum256([]byte("Error:boom:main.go:run"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Fingerprint("Error", "boom", "main.go", "run"))
}

func TestFingerprint_EachFieldMatters(t *testing.T) {
	base := Fingerprint("TypeError", "msg", "app.js", "fn")
	variants := []string{
		Fingerprint("RangeError", "msg", "app.js", "fn"),
		Fingerprint("TypeError", "msg2", "app.js", "fn"),
		Fingerprint("TypeError", "msg", "lib.js", "fn"),
		Fingerprint("TypeError", "msg", "app.js", "other"),
	}
	for _, v := range variants {
		assert.NotEqual(t, base, v)
	}
}

func TestExtractContext(t *testing.T) {
	tests := []struct {
		name  string
		trace string
		want  StackContext
	}{
		{
			name:  "function and parenthesized location",
			trace: "at x (app.js:45:3)",
			want:  StackContext{File: "app.js", Line: 45, FunctionName: "x"},
		},
		{
			name:  "nested path keeps last segment",
			trace: "    at handleClick (/src/components/Button.js:12:8)\n    at invoke (react-dom.js:1:1)",
			want:  StackContext{File: "Button.js", Line: 12, FunctionName: "handleClick"},
		},
		{
			name:  "bare location",
			trace: "at /home/app/server.js:10:5",
			want:  StackContext{File: "server.js", Line: 10},
		},
		{
			name:  "dotted function name",
			trace: "at Object.<anonymous> (index.js:7:1)",
			want:  StackContext{File: "index.js", Line: 7, FunctionName: "Object.<anonymous>"},
		},
		{
			name:  "browser frame with url",
			trace: "at handleClick (https://cdn.example.com/assets/app.min.js:1:2048)",
			want:  StackContext{File: "app.min.js", Line: 1, FunctionName: "handleClick"},
		},
		{
			name:  "fallback path and line",
			trace: "/go/src/app/main.go:42 +0x1d",
			want:  StackContext{File: "main.go", Line: 42},
		},
		{
			name:  "windows separators",
			trace: `C\app\src\worker.py:88`,
			want:  StackContext{File: "worker.py", Line: 88},
		},
		{
			name:  "only the first line is considered",
			trace: "TypeError: boom\n    at x (app.js:45:3)",
			want:  StackContext{},
		},
		{name: "empty", trace: "", want: StackContext{}},
		{name: "garbage", trace: "something went wrong", want: StackContext{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractContext(tt.trace))
		})
	}
}

func TestStackContextOverride(t *testing.T) {
	extracted := StackContext{File: "app.js", Line: 45, FunctionName: "x"}

	assert.Equal(t, extracted, extracted.Override("", 0, ""))
	assert.Equal(t,
		StackContext{File: "main.ts", Line: 9, FunctionName: "render"},
		extracted.Override("main.ts", 9, "render"))
	assert.Equal(t,
		StackContext{File: "app.js", Line: 100, FunctionName: "x"},
		extracted.Override("", 100, ""))
}
