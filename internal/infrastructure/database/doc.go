// Package database opens the bridge's SQLite store and applies its schema
// migrations.
//
// The store only holds the append-only state history. Adapters never read
// from it, so deleting the file loses history but nothing else.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and
// applied oldest first, each in its own transaction.
package database
