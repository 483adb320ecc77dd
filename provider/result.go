package provider

import (
	"errors"
	"fmt"
)

// Result is a UMF result code. Every fallible provider or pool
// operation returns one, wrapped as an error via Result.Err,
// instead of relying on a bare nil pointer to signal failure.
type Result int

const (
	Success Result = iota
	OutOfHostMemory
	OutOfDeviceMemory
	InvalidArgument
	PoolSpecific
	ProviderSpecific
	NotSupported
	Unknown
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case OutOfHostMemory:
		return "out of host memory"
	case OutOfDeviceMemory:
		return "out of device memory"
	case InvalidArgument:
		return "invalid argument"
	case PoolSpecific:
		return "pool specific error"
	case ProviderSpecific:
		return "provider specific error"
	case NotSupported:
		return "not supported"
	default:
		return "unknown error"
	}
}

// resultError adapts a Result into an error, optionally carrying a
// provider-specific native error message alongside the code.
type resultError struct {
	code   Result
	native string
}

func (e *resultError) Error() string {
	if e.native == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code, e.native)
}

// Is lets callers compare against a Result with errors.Is by way
// of Result.Err() sentinels; Result itself doesn't implement
// error so call sites are never tempted to return a bare Result(0)
// as a non-nil error.
func (e *resultError) Is(target error) bool {
	re, ok := target.(*resultError)
	return ok && re.code == e.code
}

// Err wraps r as an error, or returns nil when r is Success. This is
// the only way code in this module turns a Result into an error,
// keeping "Success as error" impossible by construction.
func (r Result) Err() error {
	if r == Success {
		return nil
	}
	return &resultError{code: r}
}

// ErrNative wraps r with an additional native error message, for
// providers reporting a backend-opaque failure (spec.md's
// "backend-opaque" error kind).
func (r Result) ErrNative(native string) error {
	if r == Success {
		return nil
	}
	return &resultError{code: r, native: native}
}

// Code extracts the Result carried by err, if any, plus Unknown for
// any other non-nil error (e.g. one a provider callback produced
// directly without going through Err/ErrNative).
func Code(err error) Result {
	if err == nil {
		return Success
	}
	var re *resultError
	if errors.As(err, &re) {
		return re.code
	}
	return Unknown
}
