// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// CaptureErrorKind classifies backend failures.
type CaptureErrorKind int

const (
	BackendInitFailed CaptureErrorKind = iota
	NoDevice
	PermissionDenied
	ExclusiveModeConflict
)

func (k CaptureErrorKind) String() string {
	switch k {
	case NoDevice:
		return "no device"
	case PermissionDenied:
		return "permission denied"
	case ExclusiveModeConflict:
		return "exclusive mode conflict"
	default:
		return "backend init failed"
	}
}

// CaptureError is returned when a backend cannot deliver audio.
type CaptureError struct {
	Kind    CaptureErrorKind
	Backend string
	Err     error
}

// Sentinels for errors.Is matching on Kind.
var (
	ErrNoDevice         = &CaptureError{Kind: NoDevice}
	ErrPermissionDenied = &CaptureError{Kind: PermissionDenied}
	ErrExclusiveMode    = &CaptureError{Kind: ExclusiveModeConflict}
	ErrBackendInit      = &CaptureError{Kind: BackendInitFailed}
)

func (e *CaptureError) Error() string {
	var sb strings.Builder
	if e.Backend != "" {
		sb.WriteString(e.Backend)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.String())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Is matches any CaptureError of the same kind.
func (e *CaptureError) Is(target error) bool {
	t, ok := target.(*CaptureError)
	return ok && t.Kind == e.Kind
}

// classifyError maps a driver error onto a CaptureError. Drivers report
// through numeric codes wrapped in text, so the message is what is stable.
func classifyError(backend string, err error) *CaptureError {
	if err == nil {
		return nil
	}
	var ce *CaptureError
	if errors.As(err, &ce) {
		if ce.Backend == "" {
			return &CaptureError{Kind: ce.Kind, Backend: backend, Err: ce.Err}
		}
		return ce
	}

	msg := strings.ToLower(err.Error())
	kind := BackendInitFailed
	switch {
	case containsAny(msg, "permission", "access denied", "not authorized", "not permitted"):
		kind = PermissionDenied
	case containsAny(msg, "exclusive", "share mode", "device busy", "device in use", "already in use"):
		kind = ExclusiveModeConflict
	case containsAny(msg, "no device", "device not found", "no default", "invalid device",
		"device unavailable", "does not exist", "no such device"):
		kind = NoDevice
	}
	return &CaptureError{Kind: kind, Backend: backend, Err: err}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func noDevice(backend, hint string) *CaptureError {
	return &CaptureError{Kind: NoDevice, Backend: backend, Err: fmt.Errorf("no device matching %q", hint)}
}
