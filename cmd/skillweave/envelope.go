package main

import (
	"encoding/json"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"
)

// Envelope is the structured output every command emits on stdout.
type Envelope struct {
	OK      bool           `json:"ok"`
	Type    string         `json:"type,omitempty"`
	Payload any            `json:"payload,omitempty"`
	Error   *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError carries a machine-readable failure. The code prefix selects
// the process exit code.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

const (
	exitInternal   = 1
	exitValidation = 2
	exitAuth       = 3
	exitNetwork    = 4
	exitNotFound   = 5
)

// exitCodeFor maps an error code to a process exit code by prefix group.
func exitCodeFor(code string) int {
	switch {
	case strings.HasPrefix(code, "AUTH_"):
		return exitAuth
	case strings.HasPrefix(code, "VALIDATION_"):
		return exitValidation
	case strings.HasPrefix(code, "NETWORK_"):
		return exitNetwork
	case strings.HasSuffix(code, "_NOT_FOUND"):
		return exitNotFound
	default:
		return exitInternal
	}
}

// emit writes a success envelope to stdout.
func emit(resultType string, payload any) error {
	return json.NewEncoder(os.Stdout).Encode(Envelope{
		OK:      true,
		Type:    resultType,
		Payload: payload,
	})
}

// fail writes a failure envelope to stdout and exits with the code's group.
func fail(envErr *EnvelopeError) error {
	_ = json.NewEncoder(os.Stdout).Encode(Envelope{
		OK:    false,
		Error: envErr,
	})

	return cli.Exit("", exitCodeFor(envErr.Code))
}
