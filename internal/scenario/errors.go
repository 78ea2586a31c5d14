package scenario

import "fmt"

// ConfigurationError reports options malformed badly enough that no
// scenario should start: an unknown executor name, a missing required
// field, a duplicate scenario name.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}
