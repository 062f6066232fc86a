package gpu

import "github.com/cockroachdb/errors"

var (
	// ErrEnumeration marks an empty or failed enumeration of adapters, extensions or layers.
	ErrEnumeration = errors.New("enumeration failed")
	// ErrNoAdapter marks a selection that found no adapter satisfying the criteria.
	ErrNoAdapter = errors.New("no suitable adapter found")
	// ErrDeviceCreation marks a failed logical device creation.
	ErrDeviceCreation = errors.New("device creation failed")
	// ErrResourceCreation marks a failed creation of any device-owned resource.
	ErrResourceCreation = errors.New("resource creation failed")
	// ErrValidation marks an error-severity message from the validation layers.
	ErrValidation = errors.New("validation layer reported an error")
)

// ResourceError wraps err with a message naming the resource and marks it as ErrResourceCreation.
func ResourceError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrResourceCreation)
}
