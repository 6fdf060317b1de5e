package domain

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidTenant     = errors.New("invalid tenant")
	ErrInvalidCollection = errors.New("invalid collection")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrInvalidDocument   = errors.New("document must be valid json")
	ErrInvalidSchema     = errors.New("invalid json schema")
	ErrNotFound          = errors.New("not found")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

func ValidateTenant(tenantID string) error {
	if tenantID == "" || !namePattern.MatchString(tenantID) {
		return ErrInvalidTenant
	}
	return nil
}

func ValidateCollection(collection string) error {
	if collection == "" || len(collection) > 128 || !namePattern.MatchString(collection) {
		return ErrInvalidCollection
	}
	return nil
}
