package models

import (
	"errors"
	"fmt"
)

// ConfigError indicates a wiring defect: an instrument category with no
// registered provider method, or a provider missing a capability the caller
// requires. Never retried and never swallowed.
type ConfigError struct {
	Provider string
	Detail   string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("configuration: %s", e.Detail)
	}
	return fmt.Sprintf("configuration: %s (provider %s)", e.Detail, e.Provider)
}

// TransientError covers provider conditions that degrade a sync rather than
// fail it: quota responses, malformed or empty payloads, or a missing
// earliest-start date. The sync boundary logs these and returns the cache.
type TransientError struct {
	Provider string
	Symbol   string
	Reason   string
	Err      error
}

func (e *TransientError) Error() string {
	msg := fmt.Sprintf("%s: %s for %q", e.Provider, e.Reason, e.Symbol)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransientError) Unwrap() error { return e.Err }

// MappingError indicates the local mapping table resolved a code to zero or
// more than one row. Always propagated.
type MappingError struct {
	Code   string
	Detail string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping: %s for code %q", e.Detail, e.Code)
}

// UnsupportedError is returned for operations a provider explicitly declines
// to implement, and for intraday synchronization.
type UnsupportedError struct {
	Provider string
	Op       string
}

func (e *UnsupportedError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s is not supported", e.Op)
	}
	return fmt.Sprintf("%s does not support %s", e.Provider, e.Op)
}

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsUnsupported reports whether err is, or wraps, an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}
