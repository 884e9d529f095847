package shm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidName is returned when a region name is empty or contains a
// path separator.
var ErrInvalidName = errors.New("invalid shared memory region name")

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
