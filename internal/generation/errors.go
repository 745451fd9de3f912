package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error calling language model")

	// ErrInvalidConfig is returned when a model client configuration is invalid
	ErrInvalidConfig = errors.New("invalid language model configuration")
)

// IsPermanent reports whether err will not go away on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidConfig)
}
