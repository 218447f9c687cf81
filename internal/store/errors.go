package store

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound reports that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
