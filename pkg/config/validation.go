package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/omnifs/pkg/registry"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Storages) == 0 {
		return fmt.Errorf("storages: at least one storage must be configured")
	}

	names := make(map[string]bool)
	protocols := make(map[string]bool)
	for i, s := range cfg.Storages {
		if names[s.Name] {
			return fmt.Errorf("storages[%d]: duplicate storage name %q", i, s.Name)
		}
		names[s.Name] = true

		if !registry.ValidScheme(s.Protocol) {
			return fmt.Errorf("storages[%d]: invalid protocol %q", i, s.Protocol)
		}
		if protocols[s.Protocol] {
			return fmt.Errorf("storages[%d]: protocol %q is already served by another storage", i, s.Protocol)
		}
		protocols[s.Protocol] = true

		// Stream options are checked here so a typo fails at load time,
		// not when the registry is built.
		if _, err := registry.DecodeOptions(s.Stream); err != nil {
			return fmt.Errorf("storages[%d].stream: %w", i, err)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
