package relaytypes

import (
	"errors"
	"fmt"
)

// ErrNoInput is returned when stdin is empty or only whitespace.
var ErrNoInput = errors.New("no input provided")

// CredentialError reports a missing credential for a provider.
type CredentialError struct {
	Provider string
	EnvVar   string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s environment variable not set", e.EnvVar)
}

// DependencyError reports a backend dependency that is missing or unusable.
type DependencyError struct {
	Name    string // e.g. "claude CLI"
	Install string // install guidance shown to the user
	Err     error  // underlying cause, if any
}

func (e *DependencyError) Error() string {
	msg := fmt.Sprintf("%s not found - please install it first: %s", e.Name, e.Install)
	if e.Err != nil {
		msg = fmt.Sprintf("%s unusable (%v) - please install it first: %s", e.Name, e.Err, e.Install)
	}
	return msg
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
