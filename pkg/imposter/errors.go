package imposter

import "fmt"

// Error is a simple error type for imposter errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

const (
	// ErrConfiguration is returned when an imposter configuration payload is
	// malformed or fails protocol-specific validation.
	ErrConfiguration = Error("invalid imposter configuration")

	// ErrUnsupportedProtocol is returned when the requested protocol is not
	// one of the known adapters.
	ErrUnsupportedProtocol = Error("unsupported protocol")

	// ErrConflict is returned when the requested port is already registered.
	ErrConflict = Error("port already in use by another imposter")

	// ErrNotFound is returned when no imposter is registered on a port.
	ErrNotFound = Error("no such imposter")

	// ErrBind is returned when an adapter cannot acquire its listener.
	ErrBind = Error("unable to bind port")
)

// ErrInjectionNotAllowed is returned when a configuration uses inject
// predicates or responses while the process runs without injection.
// It matches ErrConfiguration under errors.Is.
var ErrInjectionNotAllowed = fmt.Errorf("%w: injection is not allowed unless the server is started with --allowInjection", ErrConfiguration)

// Configurationf wraps ErrConfiguration with a formatted detail message.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
