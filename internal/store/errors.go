package store

import "errors"

// Typed failures surfaced to callers. The CLI and API layers translate
// these into messages or HTTP statuses; the store never prints or logs.
var (
	// ErrInsufficientContactInfo is returned when a contact would have
	// neither an email nor a display name.
	ErrInsufficientContactInfo = errors.New("contact requires at least an email or a name")

	// ErrUnknownProject is returned when a referenced project id does not exist.
	ErrUnknownProject = errors.New("unknown project")

	// ErrUnknownCommunication is returned when a referenced communication id does not exist.
	ErrUnknownCommunication = errors.New("unknown communication")

	// ErrUnknownContact is returned when a referenced contact id does not
	// exist, or when an assignment omits the contact and the communication
	// carries no resolved sender to fall back on.
	ErrUnknownContact = errors.New("unknown contact")

	// ErrInvalidType is returned for a communication type outside the
	// supported set.
	ErrInvalidType = errors.New("invalid communication type")

	// ErrInvalidStatus is returned for a status transition the state
	// machine does not permit.
	ErrInvalidStatus = errors.New("invalid status transition")
)
