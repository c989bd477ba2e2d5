package config

import "fmt"

// ConfigurationNotFoundError is returned when an instance references a
// base_config that does not exist.
type ConfigurationNotFoundError struct {
	Name string
}

func (e *ConfigurationNotFoundError) Error() string {
	return fmt.Sprintf("configuration %q not found", e.Name)
}
