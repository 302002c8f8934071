// Package grouping derives the stable grouping key of a reported error:
// message normalization, stack context extraction and fingerprinting.
package grouping

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// Placeholder replaces variable fragments of a message.
const Placeholder = "X"

// Normalization regexes compiled once at package init.
var (
	reDigits       = regexp.MustCompile(`[0-9]+`)
	reSingleQuoted = regexp.MustCompile(`'[^']+'`)
	reDoubleQuoted = regexp.MustCompile(`"[^"]+"`)
	reBacktick     = regexp.MustCompile("`[^`]+`")
)

// NormalizeMessage strips the variable parts of a raw error message so that
// reports differing only in embedded ids or literal values group together.
func NormalizeMessage(msg string) string {
	msg = reDigits.ReplaceAllString(msg, Placeholder)
	msg = reSingleQuoted.ReplaceAllString(msg, "'"+Placeholder+"'")
	msg = reDoubleQuoted.ReplaceAllString(msg, `"`+Placeholder+`"`)
	msg = reBacktick.ReplaceAllString(msg, "`"+Placeholder+"`")
	return strings.TrimSpace(msg)
}

// Fingerprint computes the SHA-256 grouping key of an error. Only the four
// stable fields take part; per-occurrence data must never be added here.
func Fingerprint(errorType, normalizedMessage, file, functionName string) string {
	key := errorType + ":" + normalizedMessage + ":" + file + ":" + functionName
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)
}
