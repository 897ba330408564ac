package errors

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig  Category = "config"
	CategoryScript  Category = "script"
	CategoryRuntime Category = "runtime"
	CategoryStorage Category = "storage"
	CategoryCLI     Category = "cli"
)

// Location represents a position in a configuration or script file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// DomError is a structured error with a code, location and suggestion.
type DomError struct {
	// Code is a unique error identifier (e.g., "D001").
	Code string

	// Category is the error type (config, script, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the file position where the error occurred.
	Location *Location

	// Context contains the surrounding file lines.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *DomError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *DomError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file position to the error.
func (e *DomError) WithLocation(file string, line, column int) *DomError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 3)
	return e
}

// lineRe matches the "line N" fragment of YAML and TOML decode errors.
var lineRe = regexp.MustCompile(`line (\d+)`)

// WithLocationFromError extracts a line number from a decoder error message
// such as "yaml: line 3: mapping values are not allowed in this context".
func (e *DomError) WithLocationFromError(file string, err error) *DomError {
	if err == nil {
		return e
	}
	if m := lineRe.FindStringSubmatch(err.Error()); m != nil {
		if line, _ := strconv.Atoi(m[1]); line > 0 {
			return e.WithLocation(file, line, 0)
		}
	}
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *DomError) WithSuggestion(s string) *DomError {
	e.Suggestion = s
	return e
}

// WithDetail replaces the detailed explanation.
func (e *DomError) WithDetail(d string) *DomError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *DomError) Wrap(err error) *DomError {
	e.Wrapped = err
	return e
}

// readContextLines reads up to contextSize lines centered on targetLine.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}
	return lines
}

// New creates a DomError from a registered error code.
func New(code string) *DomError {
	template, ok := registry[code]
	if !ok {
		return &DomError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &DomError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new DomError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *DomError {
	return &DomError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in a DomError with the given code. An err that already
// is, or wraps, a DomError is returned unchanged.
func FromError(err error, code string) *DomError {
	if err == nil {
		return nil
	}
	var de *DomError
	if errors.As(err, &de) {
		return de
	}
	return New(code).Wrap(err)
}
