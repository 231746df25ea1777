package config

import "fmt"

// IOError indicates the configuration file could not be read at all.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("config: cannot read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError indicates the configuration file is not well-formed YAML, or
// contains a construct the loader rejects outright (such as a duplicate
// mapping key). Line is 1-based and 0 when unknown.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	prefix := "config: parse error"
	if e.Path != "" {
		prefix = fmt.Sprintf("config: parse error in %s", e.Path)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", prefix, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// ValidationError indicates a required key is missing or has the wrong shape.
// Key is the full dot-delimited key path, e.g.
// "panopto_oauth_credentials.client_id".
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid key %q: %s", e.Key, e.Message)
}
