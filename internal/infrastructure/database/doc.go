// Package database provides the SQLite connection used for the device inventory.
//
// It opens the file with WAL journaling and a busy timeout, limits the pool to
// the single SQLite writer, and applies additive schema migrations from an
// fs.FS (embedded by the migrations package).
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
