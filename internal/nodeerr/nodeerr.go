// Package nodeerr implements the error taxonomy spec §7 describes:
// input/decoding errors, cryptographic verification failures,
// timeout/missing-peer errors, persistence errors, and bus errors, each
// wrapping the underlying cause so callers can both log a stable category
// and unwrap to the original error with errors.Is/As. It has no
// per-party blame type.
//
// Grounded on the teacher's existing fmt.Errorf("%w", ...) wrapping
// convention in paillier.go/schnorr.go, generalized into named types
// instead of ad-hoc strings so callers can branch on category.
package nodeerr

import "fmt"

// InputError wraps a malformed or unparseable request: a bad command
// envelope, an invalid key id, a structurally wrong join request.
type InputError struct {
	Op  string
	Err error
}

func (e *InputError) Error() string { return fmt.Sprintf("input error in %s: %v", e.Op, e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// NewInput wraps err as an InputError attributed to op.
func NewInput(op string, err error) *InputError { return &InputError{Op: op, Err: err} }

// CryptoError wraps a cryptographic verification failure: a bad Schnorr
// proof, a VSS commitment mismatch, a failed AEAD open.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return fmt.Sprintf("cryptographic error in %s: %v", e.Op, e.Err) }
func (e *CryptoError) Unwrap() error { return e.Err }

// NewCrypto wraps err as a CryptoError attributed to op.
func NewCrypto(op string, err error) *CryptoError { return &CryptoError{Op: op, Err: err} }

// TimeoutError wraps a round that failed to collect its expected
// messages before its deadline — spec §4.1's per-message and §5's
// join/session-start timeouts.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout in %s: %v", e.Op, e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// NewTimeout wraps err as a TimeoutError attributed to op.
func NewTimeout(op string, err error) *TimeoutError { return &TimeoutError{Op: op, Err: err} }

// PersistenceError wraps a keystore read/write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error in %s: %v", e.Op, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistence wraps err as a PersistenceError attributed to op.
func NewPersistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// BusError wraps a publish/subscribe/connect failure on the message bus.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string { return fmt.Sprintf("bus error in %s: %v", e.Op, e.Err) }
func (e *BusError) Unwrap() error { return e.Err }

// NewBus wraps err as a BusError attributed to op.
func NewBus(op string, err error) *BusError { return &BusError{Op: op, Err: err} }
