package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"media-viewer/internal/apperr"
	"media-viewer/internal/logging"
	"media-viewer/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// driverName is the custom SQLite driver name with mmap disabled.
const driverName = "sqlite3_mmap_disabled"

// standardDriverName is the default go-sqlite3 driver.
const standardDriverName = "sqlite3"

var registerOnce sync.Once

// registerDriver registers our custom SQLite driver with mmap disabled.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				_, err := conn.Exec("PRAGMA mmap_size = 0", nil)
				return err
			},
		})
	})
}

func init() {
	registerDriver()
}

// getSlowQueryThreshold returns the threshold for logging slow queries.
// Configurable via SLOW_QUERY_THRESHOLD_MS.
func getSlowQueryThreshold() float64 {
	if thresholdStr := os.Getenv("SLOW_QUERY_THRESHOLD_MS"); thresholdStr != "" {
		if threshold, err := strconv.ParseFloat(thresholdStr, 64); err == nil {
			return threshold / 1000.0
		}
	}
	return 0.1
}

// Database manages all database operations for the media repository.
type Database struct {
	db           *sql.DB
	dbPath       string
	mu           sync.RWMutex
	stats        IndexStats
	statsMu      sync.RWMutex
	txStart      time.Time
	mmapDisabled bool
}

// Options holds configuration options for database initialization.
type Options struct {
	// MmapDisabled disables memory-mapped I/O for SQLite, preventing SIGBUS
	// crashes on unreliable storage backends (NFS, network-attached volumes).
	MmapDisabled bool
}

// Info holds diagnostic info about database initialization.
type Info struct {
	Path              string
	PermissionWarning string
	SQLiteVersion     string
	MmapStatus        string
	MmapWarning       string
}

// IndexStats summarizes the media repository's current contents, mirroring
// the same IndexStats shape as a per-kind-files layout, but computed over
// the unified media_items schema.
type IndexStats struct {
	TotalItems     int
	TotalVideos    int
	TotalImages    int
	TotalDocuments int
	TotalReady     int
	TotalFailed    int
	TotalTags      int
	LastIndexed    time.Time
	IndexDuration  string
}

// observeQuery records DBQueryTotal/DBQueryDuration and logs slow queries.
//
//	done := observeQuery("create_media")
//	result, err := tx.ExecContext(ctx, query, args...)
//	done(err)
func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		duration := time.Since(start).Seconds()
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
		metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)

		threshold := getSlowQueryThreshold()
		if duration > threshold {
			logging.Warn("Slow query detected: operation=%s duration=%.3fs status=%s error=%v",
				operation, duration, status, err)
		}
	}
}

func activeDriverName(opts *Options) string {
	if opts != nil && opts.MmapDisabled {
		return driverName
	}
	return standardDriverName
}

// New creates a new Database instance and returns diagnostic info for logging.
func New(ctx context.Context, dbPath string, opts *Options) (*Database, *Info, error) {
	info := &Info{Path: dbPath}

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		info.PermissionWarning = err.Error()
	}

	driver := activeDriverName(opts)
	isMmapDisabled := opts != nil && opts.MmapDisabled
	if isMmapDisabled {
		logging.Info("SQLite mmap disabled (SIGBUS protection active for unreliable storage)")
	} else {
		logging.Debug("SQLite mmap enabled (default — standard performance mode)")
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, info, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			logging.Warn("failed to close db after ping failure: %v", cerr)
		}
		return nil, info, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:           db,
		dbPath:       dbPath,
		mmapDisabled: isMmapDisabled,
	}

	if err := d.initialize(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			logging.Warn("failed to close db after initialize failure: %v", cerr)
		}
		return nil, info, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	version, mmapStatus, mmapWarning := d.getSQLiteDiagnostics(ctx)
	info.SQLiteVersion = version
	info.MmapStatus = mmapStatus
	info.MmapWarning = mmapWarning

	return d, info, nil
}

func (d *Database) getSQLiteDiagnostics(ctx context.Context) (version, mmapStatus, mmapWarning string) {
	queryCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := d.db.QueryRowContext(queryCtx, "SELECT sqlite_version()").Scan(&version); err != nil {
		version = "unknown"
	}

	rows, err := d.db.QueryContext(queryCtx, "PRAGMA compile_options")
	if err == nil {
		defer func() {
			if cerr := rows.Close(); cerr != nil {
				logging.Warn("failed to close rows: %v", cerr)
			}
		}()
		for rows.Next() {
			var opt string
			if err := rows.Scan(&opt); err == nil {
				if len(opt) > 18 && opt[:18] == "DEFAULT_MMAP_SIZE=" {
					defaultVal := opt[18:]
					if defaultVal != "0" && d.mmapDisabled {
						mmapWarning = fmt.Sprintf("System SQLite compiled with %s — our ConnectHook sets mmap_size=0 to prevent SIGBUS on unreliable storage.", opt)
					}
				}
			}
		}
	}

	var mmapSize int64
	if err := d.db.QueryRowContext(queryCtx, "PRAGMA mmap_size").Scan(&mmapSize); err == nil {
		if d.mmapDisabled {
			if mmapSize != 0 {
				mmapStatus = fmt.Sprintf("CRITICAL: mmap_size is %d but should be 0 — SIGBUS protection is NOT active!", mmapSize)
			} else {
				mmapStatus = "mmap_size = 0 (SIGBUS protection active)"
			}
		} else {
			mmapStatus = fmt.Sprintf("mmap_size = %d (standard mode — set DB_MMAP_DISABLED=true if on unreliable storage)", mmapSize)
		}
	} else {
		mmapStatus = "unknown"
	}
	return
}

// CheckStorageHealth verifies that the database's underlying storage is accessible.
func (d *Database) CheckStorageHealth() {
	start := time.Now()

	files := []struct {
		path string
		name string
	}{
		{d.dbPath, "main"},
		{d.dbPath + "-wal", "wal"},
		{d.dbPath + "-shm", "shm"},
	}

	for _, f := range files {
		if _, err := os.Stat(f.path); err != nil {
			if os.IsNotExist(err) && f.name != "main" {
				continue
			}
			logging.Error("Storage health check FAILED for %s file (%s): %v", f.name, f.path, err)
			metrics.DBStorageErrors.WithLabelValues(f.name).Inc()
			continue
		}

		fh, err := os.Open(f.path)
		if err != nil {
			logging.Error("Storage health check: cannot open %s file (%s): %v", f.name, f.path, err)
			metrics.DBStorageErrors.WithLabelValues(f.name).Inc()
			continue
		}

		buf := make([]byte, 16)
		_, err = fh.Read(buf)
		if closeErr := fh.Close(); closeErr != nil {
			logging.Error("Storage health check: failed to close %s file (%s): %v", f.name, f.path, closeErr)
		}
		if err != nil && err.Error() != "EOF" {
			logging.Error("Storage health check: cannot read %s file (%s): %v", f.name, f.path, err)
			metrics.DBStorageErrors.WithLabelValues(f.name).Inc()
		}
	}

	duration := time.Since(start).Seconds()
	if duration > 1.0 {
		logging.Warn("Storage health check took %.3fs — storage may be degraded", duration)
	}
}

const schema = `
-- Unified media item table, replacing separate per-kind files tables.
CREATE TABLE IF NOT EXISTS media_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL UNIQUE,
	thumbnail_path TEXT,
	visibility TEXT NOT NULL DEFAULT 'private',
	owner_id INTEGER,
	group_id INTEGER,
	status TEXT NOT NULL DEFAULT 'draft',
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',

	width INTEGER,
	height INTEGER,
	aspect_ratio TEXT,
	duration_seconds REAL,
	codec TEXT,
	fps REAL,
	hls_master_path TEXT,
	dominant_color TEXT,
	exif_json TEXT,
	page_count INTEGER,
	author TEXT,
	language TEXT,
	row_count INTEGER,
	column_count INTEGER,
	csv_delimiter TEXT,

	error_message TEXT,

	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),

	FOREIGN KEY (group_id) REFERENCES access_groups(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_media_items_kind ON media_items(kind);
CREATE INDEX IF NOT EXISTS idx_media_items_status ON media_items(status);
CREATE INDEX IF NOT EXISTS idx_media_items_owner ON media_items(owner_id);
CREATE INDEX IF NOT EXISTS idx_media_items_group ON media_items(group_id);
CREATE INDEX IF NOT EXISTS idx_media_items_visibility ON media_items(visibility);
CREATE INDEX IF NOT EXISTS idx_media_items_created_at ON media_items(created_at);
CREATE INDEX IF NOT EXISTS idx_media_items_kind_status ON media_items(kind, status);
CREATE INDEX IF NOT EXISTS idx_media_items_title ON media_items(title COLLATE NOCASE);

CREATE VIRTUAL TABLE IF NOT EXISTS media_items_fts USING fts5(
	title,
	description,
	filename,
	content='media_items',
	content_rowid='id',
	tokenize='trigram'
);

CREATE TRIGGER IF NOT EXISTS media_items_ai AFTER INSERT ON media_items BEGIN
	INSERT INTO media_items_fts(rowid, title, description, filename)
	VALUES (new.id, new.title, new.description, new.filename);
END;

CREATE TRIGGER IF NOT EXISTS media_items_ad AFTER DELETE ON media_items BEGIN
	INSERT INTO media_items_fts(media_items_fts, rowid, title, description, filename)
	VALUES('delete', old.id, old.title, old.description, old.filename);
END;

CREATE TRIGGER IF NOT EXISTS media_items_au AFTER UPDATE ON media_items BEGIN
	INSERT INTO media_items_fts(media_items_fts, rowid, title, description, filename)
	VALUES('delete', old.id, old.title, old.description, old.filename);
	INSERT INTO media_items_fts(rowid, title, description, filename)
	VALUES (new.id, new.title, new.description, new.filename);
END;

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE COLLATE NOCASE,
	slug TEXT NOT NULL UNIQUE,
	color TEXT,
	icon TEXT,
	category TEXT,
	usage_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_tags_usage_count ON tags(usage_count);

CREATE TABLE IF NOT EXISTS media_tags (
	media_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	PRIMARY KEY (media_id, tag_id),
	FOREIGN KEY (media_id) REFERENCES media_items(id) ON DELETE CASCADE,
	FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_media_tags_tag ON media_tags(tag_id);

CREATE TRIGGER IF NOT EXISTS media_tags_ai AFTER INSERT ON media_tags BEGIN
	UPDATE tags SET usage_count = usage_count + 1 WHERE id = new.tag_id;
END;

CREATE TRIGGER IF NOT EXISTS media_tags_ad AFTER DELETE ON media_tags BEGIN
	UPDATE tags SET usage_count = usage_count - 1 WHERE id = old.tag_id;
END;

CREATE TABLE IF NOT EXISTS access_groups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	owner_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TABLE IF NOT EXISTS group_memberships (
	group_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	role TEXT NOT NULL,
	joined_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	PRIMARY KEY (group_id, user_id),
	FOREIGN KEY (group_id) REFERENCES access_groups(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_group_memberships_user ON group_memberships(user_id);

CREATE TABLE IF NOT EXISTS access_keys (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	description TEXT,
	owner_id INTEGER NOT NULL,
	permission TEXT NOT NULL DEFAULT 'read',
	expires_at INTEGER,
	bound_group_id INTEGER,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	FOREIGN KEY (bound_group_id) REFERENCES access_groups(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_access_keys_code ON access_keys(code);
CREATE INDEX IF NOT EXISTS idx_access_keys_owner ON access_keys(owner_id);

CREATE TABLE IF NOT EXISTS access_key_items (
	key_id INTEGER NOT NULL,
	resource_id INTEGER NOT NULL,
	PRIMARY KEY (key_id, resource_id),
	FOREIGN KEY (key_id) REFERENCES access_keys(id) ON DELETE CASCADE,
	FOREIGN KEY (resource_id) REFERENCES media_items(id) ON DELETE CASCADE
);

-- Durable mirror of internal/audit's in-memory ring. The ring is
-- authoritative for hot reads; this table is an optional append-only sink
-- (see spec's compliance Open Question), never read back to reconcile.
CREATE TABLE IF NOT EXISTS access_audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	detail TEXT,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_access_audit_log_actor ON access_audit_log(actor_id);
CREATE INDEX IF NOT EXISTS idx_access_audit_log_created_at ON access_audit_log(created_at);

-- Session binding is external to this module; these tables are kept as
-- infrastructure an external auth layer would populate. The Access Control
-- Engine only ever consumes a userID handed to it, never reads these.
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	token TEXT NOT NULL UNIQUE,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sessions_token ON sessions(token);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

func (d *Database) initialize(ctx context.Context) error {
	done := observeQuery("initialize_schema")
	_, err := d.db.ExecContext(ctx, schema)
	done(err)
	if err != nil {
		return err
	}
	return d.runMigrations(ctx)
}

// runMigrations applies schema migrations guarded by pragma_table_info
// existence checks.
func (d *Database) runMigrations(ctx context.Context) error {
	var hasErrorMessage bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('media_items')
		WHERE name='error_message'
	`).Scan(&hasErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to check for error_message column: %w", err)
	}
	if !hasErrorMessage {
		logging.Info("Migrating database: adding error_message column to media_items table")
		done := observeQuery("migrate_add_error_message")
		_, err = d.db.ExecContext(ctx, `ALTER TABLE media_items ADD COLUMN error_message TEXT`)
		done(err)
		if err != nil {
			return fmt.Errorf("failed to add error_message column: %w", err)
		}
	}

	return d.migrateLegacyPerKindTags(ctx)
}

// migrateLegacyPerKindTags is a guarded, idempotent migration path for
// deployments that still carry the pre-unification per-kind junction tables
// (video_tags/image_tags/document_tags). It runs on every startup behind a
// sqlite_master existence check, so it is a no-op once the legacy tables are
// gone; it never reconciles rows at query time, only at this startup pass.
func (d *Database) migrateLegacyPerKindTags(ctx context.Context) error {
	legacyTables := []string{"video_tags", "image_tags", "document_tags"}
	anyExist := false
	for _, name := range legacyTables {
		var exists bool
		err := d.db.QueryRowContext(ctx, `
			SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name = ?
		`, name).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check for legacy table %s: %w", name, err)
		}
		if exists {
			anyExist = true
		}
	}
	if !anyExist {
		return nil
	}

	logging.Info("Migrating legacy per-kind tag junctions into media_tags")
	done := observeQuery("migrate_legacy_per_kind_tags")
	var err error
	defer func() { done(err) }()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin legacy tag migration transaction: %w", err)
	}

	for _, name := range legacyTables {
		var exists bool
		if qerr := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name = ?
		`, name).Scan(&exists); qerr != nil {
			_ = tx.Rollback()
			err = qerr
			return err
		}
		if !exists {
			continue
		}
		if _, qerr := tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT OR IGNORE INTO media_tags (media_id, tag_id)
			SELECT media_id, tag_id FROM %s
		`, name)); qerr != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("failed to migrate rows from %s: %w", name, qerr)
			return err
		}
		if _, qerr := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, name)); qerr != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("failed to drop legacy table %s: %w", name, qerr)
			return err
		}
	}

	if cerr := tx.Commit(); cerr != nil {
		err = cerr
		return err
	}
	logging.Info("Legacy per-kind tag migration complete")
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// BeginBatch starts a transaction for batch operations.
func (d *Database) BeginBatch(ctx context.Context) (*sql.Tx, error) {
	d.mu.Lock()

	done := observeQuery("begin_transaction")
	tx, err := d.db.BeginTx(ctx, nil)
	done(err)

	if err != nil {
		d.mu.Unlock()
		return nil, err
	}

	d.txStart = time.Now()
	return tx, nil
}

// EndBatch commits or rolls back a transaction.
func (d *Database) EndBatch(tx *sql.Tx, err error) error {
	defer d.mu.Unlock()

	duration := time.Since(d.txStart).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)

		done := observeQuery("rollback")
		rbErr := tx.Rollback()
		done(rbErr)

		if rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)

	done := observeQuery("commit")
	commitErr := tx.Commit()
	done(commitErr)

	return commitErr
}

// UpdateStats updates the cached statistics.
func (d *Database) UpdateStats(stats IndexStats) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	d.stats = stats
}

// GetStats returns the current index statistics.
func (d *Database) GetStats() IndexStats {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats
}

// RefreshStats recomputes IndexStats from the media_items and tags tables
// and caches the result, replacing a post-scan UpdateStats call
// with a periodic direct count since this module has no filesystem indexer.
func (d *Database) RefreshStats(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	done := observeQuery("refresh_stats")

	var stats IndexStats
	row := d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE kind = 'video'),
			COUNT(*) FILTER (WHERE kind = 'image'),
			COUNT(*) FILTER (WHERE kind = 'document'),
			COUNT(*) FILTER (WHERE status = 'ready'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM media_items`)
	if err := row.Scan(&stats.TotalItems, &stats.TotalVideos, &stats.TotalImages,
		&stats.TotalDocuments, &stats.TotalReady, &stats.TotalFailed); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "refresh stats", err)
	}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags").Scan(&stats.TotalTags); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "refresh stats", err)
	}
	stats.LastIndexed = time.Now().UTC()
	done(nil)

	d.statsMu.Lock()
	stats.IndexDuration = d.stats.IndexDuration
	d.stats = stats
	d.statsMu.Unlock()
	return nil
}

// RebuildFTS rebuilds the full-text search index.
func (d *Database) RebuildFTS() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := observeQuery("rebuild_fts")
	_, err := d.db.ExecContext(ctx, "INSERT INTO media_items_fts(media_items_fts) VALUES('rebuild')")
	done(err)

	return err
}

// Vacuum optimizes the database.
func (d *Database) Vacuum() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	done := observeQuery("vacuum")
	_, err := d.db.ExecContext(ctx, "VACUUM")
	done(err)

	return err
}

// UpdateDBMetrics updates database connection metrics.
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions.
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	logging.Debug("Database directory is writable")

	if dbInfo, err := os.Stat(dbPath); err == nil {
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", dbPath, dbInfo.Mode(), dbInfo.Size())
		if dbInfo.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
		}
	}

	walPath := dbPath + "-wal"
	if walInfo, err := os.Stat(walPath); err == nil {
		logging.Debug("WAL file exists: %s (mode: %v, size: %d bytes)", walPath, walInfo.Mode(), walInfo.Size())
		if walInfo.Mode().Perm()&0o200 == 0 {
			logging.Warn("WAL file is read-only! Mode: %v — this will cause write failures", walInfo.Mode())
			if chmodErr := os.Chmod(walPath, 0o600); chmodErr != nil {
				logging.Error("Failed to fix WAL file permissions: %v", chmodErr)
			} else {
				logging.Info("Fixed WAL file permissions")
			}
		}
	}

	shmPath := dbPath + "-shm"
	if shmInfo, err := os.Stat(shmPath); err == nil {
		logging.Debug("SHM file exists: %s (mode: %v, size: %d bytes)", shmPath, shmInfo.Mode(), shmInfo.Size())
		if shmInfo.Mode().Perm()&0o200 == 0 {
			logging.Warn("SHM file is read-only! Mode: %v — this will cause write failures", shmInfo.Mode())
			if chmodErr := os.Chmod(shmPath, 0o600); chmodErr != nil {
				logging.Error("Failed to fix SHM file permissions: %v", chmodErr)
			} else {
				logging.Info("Fixed SHM file permissions")
			}
		}
	}

	return nil
}
