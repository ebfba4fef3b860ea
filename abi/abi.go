// Package abi implements the tagged byte protocol spoken across the guest
// boundary. Every host function response begins with a one-byte tag; the
// payload that follows depends on the tag. The protocol never carries
// length prefixes because the packed pointer already names the full buffer.
package abi

import (
	"encoding/base64"

	domerrors "github.com/larch-dev/larch-host/domain/errors"
)

// Result tags. Value results use TagOK/TagError; optional results (lookups
// that can legitimately miss) use TagOK/TagNotFound/TagOptionalError so a
// miss is distinguishable from a failure.
const (
	TagOK            byte = 0x00
	TagError         byte = 0x01
	TagNotFound      byte = 0x01
	TagOptionalError byte = 0x02
)

// OKBytes wraps a successful value result.
func OKBytes(payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = TagOK
	copy(out[1:], payload)
	return out
}

// ErrBytes wraps a failed value result with a message.
func ErrBytes(msg string) []byte {
	out := make([]byte, 1+len(msg))
	out[0] = TagError
	copy(out[1:], msg)
	return out
}

// OptionalFound wraps a present optional result.
func OptionalFound(payload []byte) []byte {
	return OKBytes(payload)
}

// OptionalAbsent marks an optional result that legitimately has no value.
func OptionalAbsent() []byte {
	return []byte{TagNotFound}
}

// OptionalErr wraps a failed optional result with a message.
func OptionalErr(msg string) []byte {
	out := make([]byte, 1+len(msg))
	out[0] = TagOptionalError
	copy(out[1:], msg)
	return out
}

// OKString wraps a successful string result.
func OKString(s string) []byte {
	return OKBytes([]byte(s))
}

// ErrString wraps a failed string result.
func ErrString(msg string) []byte {
	return ErrBytes(msg)
}

// DecodeValue unpacks a value result: payload on TagOK, the carried message
// as an error on TagError. Malformed input yields a DecodeError, never a
// panic.
func DecodeValue(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, &domerrors.DecodeError{What: "tagged result", Err: errEmpty}
	}
	switch raw[0] {
	case TagOK:
		return raw[1:], nil
	case TagError:
		return nil, &domerrors.GuestFaultError{Operation: "host call", Detail: string(raw[1:])}
	default:
		return nil, &domerrors.DecodeError{What: "tagged result", Err: errTag(raw[0])}
	}
}

// DecodeOptional unpacks an optional result: (payload, true) on TagOK,
// (nil, false) on TagNotFound, an error on TagOptionalError.
func DecodeOptional(raw []byte) ([]byte, bool, error) {
	if len(raw) == 0 {
		return nil, false, &domerrors.DecodeError{What: "optional result", Err: errEmpty}
	}
	switch raw[0] {
	case TagOK:
		return raw[1:], true, nil
	case TagNotFound:
		if len(raw) > 1 {
			return nil, false, &domerrors.DecodeError{What: "optional result", Err: errNotFoundPayload}
		}
		return nil, false, nil
	case TagOptionalError:
		return nil, false, &domerrors.GuestFaultError{Operation: "host call", Detail: string(raw[1:])}
	default:
		return nil, false, &domerrors.DecodeError{What: "optional result", Err: errTag(raw[0])}
	}
}

// DecodeString unpacks a string result.
func DecodeString(raw []byte) (string, error) {
	payload, err := DecodeValue(raw)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// EncodeBase64 renders bytes for JSON transport. Values cross the boundary
// base64-encoded so arbitrary byte strings survive JSON.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 is the exact inverse of EncodeBase64, including the empty
// string round-tripping to an empty (non-nil) slice.
func DecodeBase64(s string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &domerrors.DecodeError{What: "base64 value", Err: err}
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
