package util

import (
	"github.com/google/uuid"
)

// IsValidID reports whether s is a canonical hyphenated UUID, the format of
// every moment and call id.
func IsValidID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsValidEnum accepts an empty value as "not filtered".
func IsValidEnum[T ~string](value T, valid []T) bool {
	if value == "" {
		return true
	}
	for _, v := range valid {
		if value == v {
			return true
		}
	}
	return false
}
