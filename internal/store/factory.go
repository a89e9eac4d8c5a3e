package store

import "github.com/queelius/ctk/internal/ctkconfig"

// NewStorage opens the SQLite-backed store rooted at cfg.Store.Dir,
// mirroring the factory shape of dimajix-llm-monitor's CreateStorage.
func NewStorage(cfg ctkconfig.StoreConfig) (Storage, error) {
	return NewSQLiteStore(cfg.Dir)
}
