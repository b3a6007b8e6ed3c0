package cdr

import (
	"errors"
	"fmt"
)

// ErrMalformedDataset is matched by every MalformedDatasetError
var ErrMalformedDataset = errors.New("malformed dataset")

// MalformedDatasetError reports a dataset whose header or row shape is invalid.
// It is fatal to a load; field-level defects never produce it.
type MalformedDatasetError struct {
	Reason string
}

func (e *MalformedDatasetError) Error() string {
	return fmt.Sprintf("malformed dataset: %s", e.Reason)
}

// Is lets errors.Is match ErrMalformedDataset
func (e *MalformedDatasetError) Is(target error) bool {
	return target == ErrMalformedDataset
}

func malformed(format string, args ...any) error {
	return &MalformedDatasetError{Reason: fmt.Sprintf(format, args...)}
}
