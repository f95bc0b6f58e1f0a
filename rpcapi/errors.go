package rpcapi

import (
	"errors"

	"github.com/barrystyle/datos/storage"
)

// JSON-RPC error codes shared with the wallet RPC conventions.
const (
	ErrCodeMisc                = -1
	ErrCodeInvalidParameter    = -8
	ErrCodeInvalidAddressOrKey = -5
	ErrCodeDeserialization     = -22
)

// Error is a JSON-RPC error with an application code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string  { return e.Message }
func (e *Error) ErrorCode() int { return e.Code }

// rpcError maps storage failures to the messages operators script against.
func rpcError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrProofUnderMinSize):
		return &Error{Code: ErrCodeDeserialization, Message: "Proof under min size"}
	case errors.Is(err, storage.ErrInvalidPrivateKey):
		return &Error{Code: ErrCodeInvalidAddressOrKey, Message: "Invalid private key"}
	case errors.Is(err, storage.ErrProofDecode),
		errors.Is(err, storage.ErrHexProofTooLarge),
		errors.Is(err, storage.ErrHexProofInvalid):
		return &Error{Code: ErrCodeDeserialization, Message: "Proof decode failed"}
	case errors.Is(err, storage.ErrNoProofs):
		return &Error{Code: ErrCodeMisc, Message: "No network proofs available"}
	}
	return &Error{Code: ErrCodeMisc, Message: err.Error()}
}
