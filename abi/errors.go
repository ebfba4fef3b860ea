package abi

import (
	"errors"
	"fmt"
)

var (
	errEmpty           = errors.New("empty buffer")
	errNotFoundPayload = errors.New("not-found tag carries unexpected payload")
)

func errTag(tag byte) error {
	return fmt.Errorf("unknown result tag 0x%02x", tag)
}
