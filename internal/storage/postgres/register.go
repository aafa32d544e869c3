package postgres

import "sparkload/internal/storage"

func init() {
	// registers the warehouse backend factory
	storage.Register("postgres", New)
}
