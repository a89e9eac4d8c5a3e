// Package validate implements the mandatory entry-point validation of
// spec.md §7, generalized from original_source/ctk/core/input_validation.py.
package validate

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/queelius/ctk/internal/ctkerr"
)

var (
	idPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,200}$`)
	formatPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
)

// ConversationID validates a conversation id against [A-Za-z0-9_-]{1..200}.
func ConversationID(value string) (string, error) {
	if value == "" {
		return "", &ctkerr.ValidationError{Field: "conversation_id", Reason: "cannot be empty"}
	}
	if !idPattern.MatchString(value) {
		return "", &ctkerr.ValidationError{Field: "conversation_id", Reason: "must match [A-Za-z0-9_-]{1,200}"}
	}
	return value, nil
}

// PathSelection validates a path-selection string against {longest, first, last}.
func PathSelection(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	switch value {
	case "longest", "first", "last":
		return value, nil
	default:
		return "", &ctkerr.ValidationError{Field: "path_selection", Reason: "must be one of longest, first, last"}
	}
}

// ExportFormat validates an export format string against [A-Za-z0-9_-]{1..50}.
func ExportFormat(value string) (string, error) {
	if value == "" {
		return "", &ctkerr.ValidationError{Field: "export_format", Reason: "cannot be empty"}
	}
	if !formatPattern.MatchString(value) {
		return "", &ctkerr.ValidationError{Field: "export_format", Reason: "must match [A-Za-z0-9_-]{1,50}"}
	}
	return value, nil
}

// String validates a general string input against a maximum length and an
// emptiness constraint.
func String(name, value string, maxLength int, allowEmpty bool) (string, error) {
	if !allowEmpty && value == "" {
		return "", &ctkerr.ValidationError{Field: name, Reason: "cannot be empty"}
	}
	if maxLength > 0 && len(value) > maxLength {
		return "", &ctkerr.ValidationError{Field: name, Reason: "too long"}
	}
	return value, nil
}

// Boolean coerces the canonical string set {true,false,yes,no,on,off,1,0}.
func Boolean(name, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, &ctkerr.ValidationError{Field: name, Reason: "use true/false/yes/no/on/off/1/0"}
	}
}

// Integer parses and range-checks an integer input.
func Integer(name, value string, min, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ctkerr.ValidationError{Field: name, Reason: "not an integer"}
	}
	if n < min || n > max {
		return 0, &ctkerr.ValidationError{Field: name, Reason: "out of range"}
	}
	return n, nil
}

// FileConstraints describes the checks FilePath applies.
type FileConstraints struct {
	MustExist     bool
	AllowRelative bool
	AllowDir      bool
	AllowFile     bool
}

// FilePath resolves pathStr (cleaning ".." components before any check) and
// validates it against the given constraints.
func FilePath(pathStr string, c FileConstraints) (string, error) {
	if pathStr == "" {
		return "", &ctkerr.ValidationError{Field: "path", Reason: "cannot be empty"}
	}

	if !c.AllowRelative && !filepath.IsAbs(pathStr) {
		return "", &ctkerr.ValidationError{Field: "path", Reason: "absolute path required"}
	}

	resolved, err := filepath.Abs(filepath.Clean(pathStr))
	if err != nil {
		return "", &ctkerr.ValidationError{Field: "path", Reason: "could not resolve path"}
	}

	info, statErr := os.Stat(resolved)
	exists := statErr == nil

	if c.MustExist && !exists {
		return "", &ctkerr.ValidationError{Field: "path", Reason: "path does not exist"}
	}
	if exists {
		if info.IsDir() && !c.AllowDir {
			return "", &ctkerr.ValidationError{Field: "path", Reason: "expected file, got directory"}
		}
		if !info.IsDir() && !c.AllowFile {
			return "", &ctkerr.ValidationError{Field: "path", Reason: "expected directory, got file"}
		}
	}

	return resolved, nil
}
