package storage

import "errors"

var (
	ErrCardNotFound   = errors.New("storage: card not found")
	ErrTextNotFound   = errors.New("storage: text not found")
	ErrSourceNotFound = errors.New("storage: source not found")
)
