package access

// ConfigError is a custom error type for configuration errors. It is
// fatal to initialization: no controller is created from an invalid
// configuration.
type ConfigError struct {
	msg string
}

func NewConfigError(msg string) *ConfigError {
	return &ConfigError{msg}
}

func (e *ConfigError) Error() string {
	return e.msg
}
