package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrNoSourcePaths is returned when no UFO paths are given.
	ErrNoSourcePaths = errors.New("Please include one or more paths to UFO source directories as arguments to the script.")
	// ErrInvalidSource wraps every per-path validation failure.
	ErrInvalidSource = errors.New("invalid UFO source path")
)

// sourceError carries the operator-facing message for one rejected path.
type sourceError struct {
	path   string
	reason string
}

func (e *sourceError) Error() string {
	return fmt.Sprintf("'%s' %s", e.path, e.reason)
}

func (e *sourceError) Unwrap() error {
	return ErrInvalidSource
}

// validateSources checks every path before anything is dispatched and
// returns the first failure.
func validateSources(paths []string) error {
	if len(paths) == 0 {
		return ErrNoSourcePaths
	}
	for _, p := range paths {
		if err := validateSource(p); err != nil {
			return err
		}
	}
	return nil
}

func validateSource(path string) error {
	// Shortest plausible value is "x.ufo".
	if len(path) < 5 {
		return &sourceError{path, "is not properly formatted as a path to a UFO source directory"}
	}
	if !strings.HasSuffix(strings.TrimRight(path, `/\`), ".ufo") {
		return &sourceError{path, "does not appear to be a UFO source directory"}
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return &sourceError{path, "does not appear to be a valid path to a UFO source directory"}
	}
	return nil
}
