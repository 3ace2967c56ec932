// Package errs defines the error taxonomy shared by every pots component.
//
// Each class has a sentinel (matched with errors.Is) and, where callers need
// detail, a typed error that unwraps to the sentinel:
//
//	if errors.Is(err, errs.ErrCompatibility) { ... }
//
//	var shapeErr *errs.DataShapeError
//	if errors.As(err, &shapeErr) { fmt.Println(shapeErr.Want, shapeErr.Got) }
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrDataShape          = errors.New("data shape error")
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCompatibility      = errors.New("checkpoint incompatible with model")
	ErrNumericInstability = errors.New("numeric instability")
	ErrTrainingDiverged   = errors.New("training diverged")
	ErrUnsupportedTask    = errors.New("operation not supported for task")
	ErrNotFitted          = errors.New("model is not fitted")
)

// ConfigurationError reports an invalid or contradictory option. It is fatal and
// raised before any epoch starts.
type ConfigurationError struct {
	Option string // Offending option, e.g. "batch_size"
	Reason string
}

// Configuration returns a ConfigurationError for option.
func Configuration(option, format string, args ...any) error {
	return &ConfigurationError{Option: option, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Option, e.Reason)
}

// Unwrap returns ErrConfiguration.
func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// DataShapeError reports a value/mask mismatch or a feature-count mismatch with a
// trained model.
type DataShapeError struct {
	What string
	Want []int
	Got  []int
}

// DataShape returns a DataShapeError.
func DataShape(what string, want, got []int) error {
	return &DataShapeError{What: what, Want: want, Got: got}
}

func (e *DataShapeError) Error() string {
	if e.Want == nil && e.Got == nil {
		return fmt.Sprintf("data shape error: %s", e.What)
	}
	return fmt.Sprintf("data shape error: %s: want %v, got %v", e.What, e.Want, e.Got)
}

// Unwrap returns ErrDataShape.
func (e *DataShapeError) Unwrap() error { return ErrDataShape }

// DeviceUnavailableError is recovered by the device manager: it is logged and the
// run falls back to the default placement.
type DeviceUnavailableError struct {
	Placement string
	Reason    string
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("device unavailable: %s: %s", e.Placement, e.Reason)
}

// Unwrap returns ErrDeviceUnavailable.
func (e *DeviceUnavailableError) Unwrap() error { return ErrDeviceUnavailable }

// CheckpointNotFound returns an error wrapping ErrCheckpointNotFound.
func CheckpointNotFound(id string) error {
	return fmt.Errorf("%w: %q", ErrCheckpointNotFound, id)
}

// CompatibilityError reports a checkpoint that cannot be restored into a model.
type CompatibilityError struct {
	Field string // "architecture", "task" or a tensor name
	Want  string
	Got   string
}

// Compatibility returns a CompatibilityError.
func Compatibility(field, want, got string) error {
	return &CompatibilityError{Field: field, Want: want, Got: got}
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("checkpoint incompatible: %s: model has %s, checkpoint has %s", e.Field, e.Want, e.Got)
}

// Unwrap returns ErrCompatibility.
func (e *CompatibilityError) Unwrap() error { return ErrCompatibility }

// NumericInstabilityWarning is surfaced to the caller every time a training loss
// becomes non-finite. It is not fatal on its own.
type NumericInstabilityWarning struct {
	Epoch int
	Step  int64
	Loss  float64
	Count int // Occurrences so far in this run
}

func (w *NumericInstabilityWarning) Error() string {
	return fmt.Sprintf("numeric instability: non-finite loss %v at epoch %d step %d (%d so far)",
		w.Loss, w.Epoch, w.Step, w.Count)
}

// Unwrap returns ErrNumericInstability.
func (w *NumericInstabilityWarning) Unwrap() error { return ErrNumericInstability }

// TrainingDiverged returns a fatal error after too many non-finite losses.
func TrainingDiverged(count, limit int) error {
	return fmt.Errorf("%w: %d non-finite losses exceed limit %d", ErrTrainingDiverged, count, limit)
}

// UnsupportedTask returns an error wrapping ErrUnsupportedTask.
func UnsupportedTask(op, task string) error {
	return fmt.Errorf("%w: %s on %s model", ErrUnsupportedTask, op, task)
}
