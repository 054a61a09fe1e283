package repos

import (
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// OpenDB opens the local store once; callers share the returned handle.
// SQLite allows a single writer, so the pool is capped at one connection.
// That also keeps ":memory:" databases from splitting across connections.
func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;
PRAGMA busy_timeout = 5000;

-- In-progress sale, one row per line, ordered by position
CREATE TABLE IF NOT EXISTS cart_items(
  branch_id  INTEGER NOT NULL,
  position   INTEGER NOT NULL,
  product_id INTEGER NOT NULL,
  name       TEXT NOT NULL,
  qty        INTEGER NOT NULL CHECK (qty >= 1),
  price      NUMERIC NOT NULL CHECK (price >= 0),
  discount   NUMERIC NOT NULL DEFAULT 0 CHECK (discount >= 0),
  percent    NUMERIC NOT NULL DEFAULT 0,
  tax_id     INTEGER,
  updated_at TEXT,
  PRIMARY KEY (branch_id, position)
);

-- Sales captured while offline
CREATE TABLE IF NOT EXISTS offline_sales(
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  branch_id  INTEGER NOT NULL,
  ref        TEXT NOT NULL UNIQUE,
  payload    TEXT NOT NULL,
  queued_at  TEXT NOT NULL,
  attempts   INTEGER NOT NULL DEFAULT 0,
  status     TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','dead')),
  last_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_offline_sales_queued_at ON offline_sales(queued_at);
CREATE INDEX IF NOT EXISTS idx_offline_sales_status    ON offline_sales(branch_id, status);

-- Product snapshots for offline search
CREATE TABLE IF NOT EXISTS product_snapshots(
  branch_id  INTEGER NOT NULL,
  id         INTEGER NOT NULL,
  name       TEXT NOT NULL,
  price      NUMERIC NOT NULL CHECK (price >= 0),
  barcode    TEXT NOT NULL DEFAULT '',
  tax_id     INTEGER,
  updated_at TEXT,
  PRIMARY KEY (branch_id, id)
);
CREATE INDEX IF NOT EXISTS idx_product_snapshots_name ON product_snapshots(LOWER(name));

-- Generic offline records (customers, drafts, ...)
CREATE TABLE IF NOT EXISTS offline_records(
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  store      TEXT NOT NULL,
  rec_key    TEXT NOT NULL,
  data       TEXT NOT NULL,
  created_at TEXT NOT NULL,
  synced     INTEGER NOT NULL DEFAULT 0,
  UNIQUE (store, rec_key)
);
CREATE INDEX IF NOT EXISTS idx_offline_records_created_at ON offline_records(created_at);
CREATE INDEX IF NOT EXISTS idx_offline_records_synced     ON offline_records(synced);

-- Generic sync queue replayed against /api/sync
CREATE TABLE IF NOT EXISTS sync_queue(
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  sync_type  TEXT NOT NULL,
  payload    TEXT NOT NULL,
  created_at TEXT NOT NULL,
  attempts   INTEGER NOT NULL DEFAULT 0,
  status     TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_created_at ON sync_queue(created_at);
CREATE INDEX IF NOT EXISTS idx_sync_queue_status     ON sync_queue(status);

-- Response snapshots, partitioned by cache name
CREATE TABLE IF NOT EXISTS cache_entries(
  cache_name   TEXT NOT NULL,
  req_key      TEXT NOT NULL,
  status       INTEGER NOT NULL,
  content_type TEXT NOT NULL DEFAULT '',
  header_json  TEXT,
  body         BLOB,
  stored_at    TEXT NOT NULL,
  PRIMARY KEY (cache_name, req_key)
);
`
	_, err := db.Exec(schema)
	return err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
