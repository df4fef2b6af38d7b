package schema

import (
	"regexp"
	"strings"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/db/models"
)

// identifierRegex matches valid collection and field names. Leading
// underscores are rejected separately so the error message can call out
// the reserved prefix.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Implicit fields carried by every auth collection.
const (
	AuthFieldEmail        = "email"
	AuthFieldPasswordHash = "password_hash"
	AuthFieldVerified     = "verified"
)

// ValidIdentifier reports whether name is usable as a collection or
// field identifier.
func ValidIdentifier(name string) bool {
	return identifierRegex.MatchString(name)
}

// ValidateCollectionName checks a proposed collection name against the
// identifier rules and reserved prefixes.
func ValidateCollectionName(name string) error {
	if name == "" {
		return apperrors.Validation("collection name is required")
	}
	if strings.HasPrefix(name, "_") {
		return apperrors.Validation("collection name %q uses the reserved '_' prefix", name)
	}
	if !ValidIdentifier(name) {
		return apperrors.Validation("invalid collection name %q", name)
	}
	return nil
}

// ValidateFieldName checks a proposed field name. Managed columns and
// reserved prefixes are rejected.
func ValidateFieldName(name string) error {
	if name == "" {
		return apperrors.Validation("field name is required")
	}
	if strings.HasPrefix(name, "_") {
		return apperrors.Validation("field name %q uses the reserved '_' prefix", name)
	}
	if models.IsManagedColumn(name) {
		return apperrors.Validation("field name %q is reserved", name)
	}
	if !ValidIdentifier(name) {
		return apperrors.Validation("invalid field name %q", name)
	}
	return nil
}

// validFieldType reports whether t is a known field type.
func validFieldType(t models.FieldType) bool {
	for _, known := range models.KnownFieldTypes {
		if t == known {
			return true
		}
	}
	return false
}
