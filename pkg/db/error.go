package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Substrings each supported dialect emits on a unique index violation:
// postgres SQLSTATE 23505, mysql error 1062, sqlite result code 2067.
var duplicateKeyMarkers = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports whether err is a unique constraint violation.
// The ledger and entitlement TryInsert paths lean on this to turn a lost
// insert race into a clean "already recorded" answer instead of an error.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range duplicateKeyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
