package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"locker/internal/assets"
)

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Server.MaxRequestBytes < assets.MaxUploadBytes {
		return fmt.Errorf("server.max_request_bytes: must be at least %d to admit the largest upload", assets.MaxUploadBytes)
	}

	return nil
}

// ValidateArchive checks the archive section, which only locker-archive
// needs.
func ValidateArchive(cfg *ArchiveConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
