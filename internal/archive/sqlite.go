package archive

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ingot/internal/archive/migrations"
	"ingot/internal/loader"
	"ingot/internal/model"
	"ingot/internal/objstorage"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is a fixed-width UTC timestamp format so that lexicographic
// ordering of stored values matches chronological ordering.
const timeLayout = "2006-01-02 15:04:05.000000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

// SQLiteArchive implements loader.Archive with object metadata in SQLite and
// content payloads delegated to an ObjStorage.
type SQLiteArchive struct {
	db       *sql.DB
	payloads objstorage.ObjStorage
	path     string
}

var _ loader.Archive = (*SQLiteArchive)(nil)

// NewSQLiteArchive opens (or creates) the archive database at path and runs
// any pending schema migrations. path can be ":memory:" for an in-memory
// database. Content payloads are stored in payloads, keyed by sha1_git.
func NewSQLiteArchive(path string, payloads objstorage.ObjStorage) (*SQLiteArchive, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating archive database: %w", err)
	}

	return &SQLiteArchive{
		db:       db,
		payloads: payloads,
		path:     path,
	}, nil
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward
	// compatibility).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// CheckMigrations verifies that the archive database schema is at the latest
// version the binary knows about. A database that is dirty or ahead of the
// binary is unusable even after MigrateUp.
func (a *SQLiteArchive) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(a.db)
}

// withTx runs fn inside a transaction, committing on success.
func (a *SQLiteArchive) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Graph object writes

func (a *SQLiteArchive) ContentAdd(contents []*model.Content) (int, error) {
	written := 0
	err := a.withTx(func(tx *sql.Tx) error {
		for _, c := range contents {
			res, err := tx.Exec(
				`INSERT OR IGNORE INTO content (sha1_git, sha256, length) VALUES (?, ?, ?)`,
				string(c.Sha1Git), c.Sha256, c.Length)
			if err != nil {
				return fmt.Errorf("inserting content %s: %w", c.Sha1Git, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			written++
			if c.Data != nil {
				if err := a.payloads.Put(string(c.Sha1Git), bytes.NewReader(c.Data), c.Length); err != nil {
					return fmt.Errorf("storing payload %s: %w", c.Sha1Git, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (a *SQLiteArchive) DirectoryAdd(dirs []*model.Directory) (int, error) {
	written := 0
	err := a.withTx(func(tx *sql.Tx) error {
		for _, d := range dirs {
			res, err := tx.Exec(`INSERT OR IGNORE INTO directory (id) VALUES (?)`, string(d.ID))
			if err != nil {
				return fmt.Errorf("inserting directory %s: %w", d.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			written++
			for rank, e := range d.Entries {
				_, err := tx.Exec(
					`INSERT INTO directory_entry (directory_id, name, type, perms, target, rank)
					 VALUES (?, ?, ?, ?, ?, ?)`,
					string(d.ID), e.Name, string(e.Type), e.Perms, string(e.Target), rank)
				if err != nil {
					return fmt.Errorf("inserting entry %s of directory %s: %w", e.Name, d.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (a *SQLiteArchive) RevisionAdd(revs []*model.Revision) (int, error) {
	written := 0
	err := a.withTx(func(tx *sql.Tx) error {
		for _, r := range revs {
			res, err := tx.Exec(
				`INSERT OR IGNORE INTO revision
				 (id, directory, author_name, author_email, committer_name, committer_email,
				  date, committer_date, message, type, synthetic)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				string(r.ID), string(r.Directory),
				r.Author.Name, r.Author.Email, r.Committer.Name, r.Committer.Email,
				formatTime(r.Date), formatTime(r.CommitterDate),
				r.Message, string(r.Type), boolToInt(r.Synthetic))
			if err != nil {
				return fmt.Errorf("inserting revision %s: %w", r.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			written++
			for rank, parent := range r.Parents {
				_, err := tx.Exec(
					`INSERT INTO revision_parent (revision_id, parent_id, parent_rank) VALUES (?, ?, ?)`,
					string(r.ID), string(parent), rank)
				if err != nil {
					return fmt.Errorf("inserting parent of revision %s: %w", r.ID, err)
				}
			}
			for key, value := range r.Metadata {
				_, err := tx.Exec(
					`INSERT INTO revision_metadata (revision_id, key, value) VALUES (?, ?, ?)`,
					string(r.ID), key, value)
				if err != nil {
					return fmt.Errorf("inserting metadata of revision %s: %w", r.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (a *SQLiteArchive) ReleaseAdd(rels []*model.Release) (int, error) {
	written := 0
	err := a.withTx(func(tx *sql.Tx) error {
		for _, r := range rels {
			res, err := tx.Exec(
				`INSERT OR IGNORE INTO "release"
				 (id, name, target, target_type, author_name, author_email, date, message)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				string(r.ID), r.Name, string(r.Target), string(r.TargetType),
				r.Author.Name, r.Author.Email, formatTime(r.Date), r.Message)
			if err != nil {
				return fmt.Errorf("inserting release %s: %w", r.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			written += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (a *SQLiteArchive) SnapshotAdd(snap *model.Snapshot) (int, error) {
	written := 0
	err := a.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT OR IGNORE INTO snapshot (id) VALUES (?)`, string(snap.ID))
		if err != nil {
			return fmt.Errorf("inserting snapshot %s: %w", snap.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		written = 1
		for name, branch := range snap.Branches {
			_, err := tx.Exec(
				`INSERT INTO snapshot_branch (snapshot_id, name, target_type, target) VALUES (?, ?, ?, ?)`,
				string(snap.ID), name, string(branch.Type), branch.Target)
			if err != nil {
				return fmt.Errorf("inserting branch %s of snapshot %s: %w", name, snap.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Missing queries

// sqlite limits the number of bound variables per statement.
const maxQueryIDs = 500

// missing filters ids down to those absent from the given table, preserving
// input order and dropping duplicates.
func (a *SQLiteArchive) missing(table, column string, ids []model.ID) ([]model.ID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	present := make(map[model.ID]bool)
	for start := 0; start < len(ids); start += maxQueryIDs {
		end := min(start+maxQueryIDs, len(ids))
		chunk := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = string(id)
		}

		// Table and column names come from callers in this file, never
		// from user input.
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (%s)`, column, table, column, placeholders)
		rows, err := a.db.Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", table, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			present[model.ID(id)] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	var result []model.ID
	seen := make(map[model.ID]bool)
	for _, id := range ids {
		if present[id] || seen[id] {
			continue
		}
		seen[id] = true
		result = append(result, id)
	}
	return result, nil
}

func (a *SQLiteArchive) ContentMissing(ids []model.ID) ([]model.ID, error) {
	return a.missing("content", "sha1_git", ids)
}

func (a *SQLiteArchive) DirectoryMissing(ids []model.ID) ([]model.ID, error) {
	return a.missing("directory", "id", ids)
}

func (a *SQLiteArchive) RevisionMissing(ids []model.ID) ([]model.ID, error) {
	return a.missing("revision", "id", ids)
}

// Graph object reads

func (a *SQLiteArchive) ContentGet(id model.ID) (*model.Content, error) {
	var c model.Content
	var sha1Git string
	err := a.db.QueryRow(
		`SELECT sha1_git, sha256, length FROM content WHERE sha1_git = ?`, string(id)).
		Scan(&sha1Git, &c.Sha256, &c.Length)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading content %s: %w", id, err)
	}
	c.Sha1Git = model.ID(sha1Git)

	ok, err := a.payloads.Contains(string(id))
	if err != nil {
		return nil, fmt.Errorf("checking payload %s: %w", id, err)
	}
	if ok {
		var buf bytes.Buffer
		if err := a.payloads.Get(string(id), &buf); err != nil {
			return nil, fmt.Errorf("reading payload %s: %w", id, err)
		}
		c.Data = buf.Bytes()
	}
	return &c, nil
}

func (a *SQLiteArchive) DirectoryGet(id model.ID) (*model.Directory, error) {
	var exists int
	err := a.db.QueryRow(`SELECT 1 FROM directory WHERE id = ?`, string(id)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", id, err)
	}

	rows, err := a.db.Query(
		`SELECT name, type, perms, target FROM directory_entry WHERE directory_id = ? ORDER BY rank`,
		string(id))
	if err != nil {
		return nil, fmt.Errorf("reading entries of directory %s: %w", id, err)
	}
	defer rows.Close()

	dir := &model.Directory{ID: id}
	for rows.Next() {
		var e model.DirectoryEntry
		var entryType, target string
		if err := rows.Scan(&e.Name, &entryType, &e.Perms, &target); err != nil {
			return nil, err
		}
		e.Type = model.EntryType(entryType)
		e.Target = model.ID(target)
		dir.Entries = append(dir.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dir, nil
}

func (a *SQLiteArchive) RevisionGet(id model.ID) (*model.Revision, error) {
	var r model.Revision
	var directory, date, committerDate, revType string
	var synthetic int
	err := a.db.QueryRow(
		`SELECT directory, author_name, author_email, committer_name, committer_email,
		        date, committer_date, message, type, synthetic
		 FROM revision WHERE id = ?`, string(id)).
		Scan(&directory, &r.Author.Name, &r.Author.Email, &r.Committer.Name, &r.Committer.Email,
			&date, &committerDate, &r.Message, &revType, &synthetic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading revision %s: %w", id, err)
	}

	r.ID = id
	r.Directory = model.ID(directory)
	r.Type = model.RevisionType(revType)
	r.Synthetic = synthetic != 0
	if r.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if r.CommitterDate, err = parseTime(committerDate); err != nil {
		return nil, err
	}

	rows, err := a.db.Query(
		`SELECT parent_id FROM revision_parent WHERE revision_id = ? ORDER BY parent_rank`, string(id))
	if err != nil {
		return nil, fmt.Errorf("reading parents of revision %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var parent string
		if err := rows.Scan(&parent); err != nil {
			return nil, err
		}
		r.Parents = append(r.Parents, model.ID(parent))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metaRows, err := a.db.Query(
		`SELECT key, value FROM revision_metadata WHERE revision_id = ?`, string(id))
	if err != nil {
		return nil, fmt.Errorf("reading metadata of revision %s: %w", id, err)
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var key, value string
		if err := metaRows.Scan(&key, &value); err != nil {
			return nil, err
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]string)
		}
		r.Metadata[key] = value
	}
	if err := metaRows.Err(); err != nil {
		return nil, err
	}

	return &r, nil
}

func (a *SQLiteArchive) ReleaseGet(id model.ID) (*model.Release, error) {
	var r model.Release
	var target, targetType, date string
	err := a.db.QueryRow(
		`SELECT name, target, target_type, author_name, author_email, date, message
		 FROM "release" WHERE id = ?`, string(id)).
		Scan(&r.Name, &target, &targetType, &r.Author.Name, &r.Author.Email, &date, &r.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading release %s: %w", id, err)
	}

	r.ID = id
	r.Target = model.ID(target)
	r.TargetType = model.ObjectType(targetType)
	if r.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	return &r, nil
}

func (a *SQLiteArchive) SnapshotGet(id model.ID) (*model.Snapshot, error) {
	var exists int
	err := a.db.QueryRow(`SELECT 1 FROM snapshot WHERE id = ?`, string(id)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", id, err)
	}

	rows, err := a.db.Query(
		`SELECT name, target_type, target FROM snapshot_branch WHERE snapshot_id = ?`, string(id))
	if err != nil {
		return nil, fmt.Errorf("reading branches of snapshot %s: %w", id, err)
	}
	defer rows.Close()

	snap := &model.Snapshot{ID: id, Branches: make(map[string]model.Branch)}
	for rows.Next() {
		var name, targetType, target string
		if err := rows.Scan(&name, &targetType, &target); err != nil {
			return nil, err
		}
		snap.Branches[name] = model.Branch{Type: model.TargetType(targetType), Target: target}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// ExtID mapping

func (a *SQLiteArchive) ExtIDGet(manifest model.ID) (model.ID, error) {
	var revision string
	err := a.db.QueryRow(
		`SELECT revision_id FROM extid WHERE manifest_digest = ?`, string(manifest)).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading extid %s: %w", manifest, err)
	}
	return model.ID(revision), nil
}

func (a *SQLiteArchive) ExtIDAdd(manifest, revision model.ID) error {
	_, err := a.db.Exec(
		`INSERT OR IGNORE INTO extid (manifest_digest, revision_id) VALUES (?, ?)`,
		string(manifest), string(revision))
	if err != nil {
		return fmt.Errorf("inserting extid %s: %w", manifest, err)
	}
	return nil
}

// Origin and visit bookkeeping

func (a *SQLiteArchive) OriginAdd(url string) error {
	_, err := a.db.Exec(`INSERT OR IGNORE INTO origin (url) VALUES (?)`, url)
	if err != nil {
		return fmt.Errorf("inserting origin %s: %w", url, err)
	}
	return nil
}

func (a *SQLiteArchive) OriginVisitAdd(visit *model.OriginVisit) (*model.OriginVisit, error) {
	assigned := *visit
	err := a.withTx(func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRow(
			`SELECT COALESCE(MAX(visit), 0) + 1 FROM origin_visit WHERE origin = ?`, visit.Origin).
			Scan(&next)
		if err != nil {
			return fmt.Errorf("assigning visit number for %s: %w", visit.Origin, err)
		}
		assigned.Visit = next
		_, err = tx.Exec(
			`INSERT INTO origin_visit (origin, visit, type, date) VALUES (?, ?, ?, ?)`,
			assigned.Origin, assigned.Visit, assigned.Type, formatTime(assigned.Date))
		if err != nil {
			return fmt.Errorf("inserting visit for %s: %w", visit.Origin, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &assigned, nil
}

func (a *SQLiteArchive) OriginVisitStatusAdd(status *model.OriginVisitStatus) error {
	var snapshot any
	if status.Snapshot != nil {
		snapshot = string(*status.Snapshot)
	}
	_, err := a.db.Exec(
		`INSERT INTO origin_visit_status (origin, visit, date, status, snapshot) VALUES (?, ?, ?, ?, ?)`,
		status.Origin, status.Visit, formatTime(status.Date), string(status.Status), snapshot)
	if err != nil {
		return fmt.Errorf("inserting visit status for %s: %w", status.Origin, err)
	}
	return nil
}

func (a *SQLiteArchive) OriginVisitGetLatest(origin string, requireSnapshot bool) (*model.OriginVisitStatus, error) {
	query := `SELECT origin, visit, date, status, snapshot FROM origin_visit_status WHERE origin = ?`
	if requireSnapshot {
		query += ` AND snapshot IS NOT NULL`
	}
	query += ` ORDER BY date DESC, visit DESC, seq DESC LIMIT 1`

	status, err := scanVisitStatus(a.db.QueryRow(query, origin))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest visit of %s: %w", origin, err)
	}
	return status, nil
}

func (a *SQLiteArchive) OriginVisitStatuses(origin string) ([]*model.OriginVisitStatus, error) {
	rows, err := a.db.Query(
		`SELECT origin, visit, date, status, snapshot FROM origin_visit_status
		 WHERE origin = ? ORDER BY seq`, origin)
	if err != nil {
		return nil, fmt.Errorf("reading visit statuses of %s: %w", origin, err)
	}
	defer rows.Close()

	var statuses []*model.OriginVisitStatus
	for rows.Next() {
		status, err := scanVisitStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVisitStatus(s scanner) (*model.OriginVisitStatus, error) {
	var status model.OriginVisitStatus
	var date, statusStr string
	var snapshot sql.NullString
	if err := s.Scan(&status.Origin, &status.Visit, &date, &statusStr, &snapshot); err != nil {
		return nil, err
	}
	var err error
	if status.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	status.Status = model.VisitStatus(statusStr)
	if snapshot.Valid {
		id := model.ID(snapshot.String)
		status.Snapshot = &id
	}
	return &status, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
