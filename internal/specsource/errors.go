package specsource

import (
	"errors"
	"fmt"
)

// ErrNoBaseURL is returned by Client.Do when the backend's URL variable was unset
// at construction time.
var ErrNoBaseURL = errors.New("no base URL configured")

// RemoteFetchError reports a failed spec download. StatusCode is zero when the
// request never produced a response.
type RemoteFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *RemoteFetchError) Unwrap() error { return e.Err }

// LocalReadError reports a spec file that could not be opened or read.
type LocalReadError struct {
	Path string
	Err  error
}

func (e *LocalReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *LocalReadError) Unwrap() error { return e.Err }

// ParseError reports a document that is not valid JSON/YAML, or whose root is not
// a mapping.
type ParseError struct {
	Source string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s as %s: %v", e.Source, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
