/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"log"
	"time"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// errorCode is the machine-readable class of a rejected command,
// sent back to the offending client only.
type errorCode string

const (
	errValidation    errorCode = "validation"
	errAuthorization errorCode = "authorization"
	errCapacity      errorCode = "capacity"
	errNotFound      errorCode = "not_found"
)

type gameError struct {
	code   errorCode
	reason string
}

func (e *gameError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.reason)
}

func validationError(format string, args ...any) *gameError {
	return &gameError{code: errValidation, reason: fmt.Sprintf(format, args...)}
}

func authorizationError(format string, args ...any) *gameError {
	return &gameError{code: errAuthorization, reason: fmt.Sprintf(format, args...)}
}

func capacityError(format string, args ...any) *gameError {
	return &gameError{code: errCapacity, reason: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) *gameError {
	return &gameError{code: errNotFound, reason: fmt.Sprintf(format, args...)}
}
