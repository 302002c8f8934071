package grouping

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// at fn (path:line:col) | at path:line:col
	reFrame = regexp.MustCompile(`at\s+(?:([\w.$<>\[\]]+)\s+)?\(?((?:[A-Za-z][\w+.-]*://)?[^:()\s]+):(\d+):(\d+)\)?`)
	// path:line anywhere in the line
	reFileLine = regexp.MustCompile(`([^:]+):(\d+)`)
)

// StackContext is the source location recovered from a stack trace.
type StackContext struct {
	File         string
	Line         int
	FunctionName string
}

// ExtractContext parses the first line of a stack trace. Unparseable input,
// including the empty string, yields the zero StackContext.
func ExtractContext(stackTrace string) StackContext {
	first, _, _ := strings.Cut(stackTrace, "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return StackContext{}
	}

	if m := reFrame.FindStringSubmatch(first); m != nil {
		line, _ := strconv.Atoi(m[3])
		return StackContext{
			FunctionName: m[1],
			File:         baseName(m[2]),
			Line:         line,
		}
	}

	if m := reFileLine.FindStringSubmatch(first); m != nil {
		line, _ := strconv.Atoi(m[2])
		return StackContext{
			File: baseName(strings.TrimSpace(m[1])),
			Line: line,
		}
	}

	return StackContext{}
}

// Override replaces extracted values with explicit caller-supplied ones.
// Explicit input always wins when present.
func (c StackContext) Override(file string, line int, functionName string) StackContext {
	if file != "" {
		c.File = file
	}
	if line > 0 {
		c.Line = line
	}
	if functionName != "" {
		c.FunctionName = functionName
	}
	return c
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 && i < len(path)-1 {
		return path[i+1:]
	}
	return path
}
