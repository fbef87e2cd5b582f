package account

import "errors"

// Error taxonomy shared by the account workflow. Handlers map these to HTTP
// status codes; services wrap them with fmt.Errorf("%w: ...") for detail.
var (
	ErrValidation      = errors.New("invalid input")
	ErrConflict        = errors.New("resource conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrPolicyViolation = errors.New("operation not permitted")
	ErrNotFound        = errors.New("not found")
	ErrUnavailable     = errors.New("storage unavailable")

	// ErrConfirmationRequired is returned when a field change carries a
	// RequiresConfirmation decision and the caller did not confirm.
	ErrConfirmationRequired = errors.New("confirmation required")

	// ErrInvalidToken indicates a bearer token failed validation.
	ErrInvalidToken = errors.New("invalid token")
)
