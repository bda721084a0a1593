package pipeline

import "fmt"

// ConfigError reports an invalid construction parameter. It is fatal:
// the pipeline refuses to build rather than silently correcting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline config: %s %s", e.Field, e.Reason)
}
