package domain

import "fmt"

// Adapter error kinds distinguish how a source fetch failed.
const (
	AdapterNetwork = "network"
	AdapterTimeout = "timeout"
	AdapterParse   = "parse"
	AdapterStatus  = "status"
)

// AdapterError reports a failed source fetch. Kind is one of the adapter
// error kind constants.
type AdapterError struct {
	Kind    string
	Message string
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter %s: %s", e.Kind, e.Message)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NormalizationError reports a raw record that cannot be mapped onto the
// canonical schema.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return "normalize: " + e.Reason
}

// PersistenceError reports a failed store operation. Unreachable marks the
// store itself as unavailable rather than a single write being rejected.
type PersistenceError struct {
	Op          string
	Unreachable bool
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SendError reports a failed notification delivery.
type SendError struct {
	Message string
}

func (e *SendError) Error() string {
	return "send: " + e.Message
}
