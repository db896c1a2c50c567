// Package docstore persists the versioned content documents that back
// catalogs, cases and plans. Every save creates a new version; deletes
// remove all versions of a name.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"testledger/internal/log"
	"testledger/internal/storage"
)

// Document is one stored version of a named document.
type Document struct {
	Name    string
	Version int
	Time    time.Time
	Author  string
	Title   string
	Content string
	Comment string
}

// NotFoundError reports a read of a document that is not stored.
type NotFoundError struct {
	Name    string
	Version int // 0 means latest
}

func (e *NotFoundError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("document %q version %d not found", e.Name, e.Version)
	}
	return fmt.Sprintf("document %q not found", e.Name)
}

// Store reads and writes documents on the shared database.
type Store struct {
	db *storage.DB
}

// NewStore builds a document store over the given database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

const docColumns = "name, version, time, author, title, content, comment"

func scanDocument(row *sql.Row) (*Document, error) {
	var doc Document
	var when int64
	var author, title, content, comment sql.NullString
	err := row.Scan(&doc.Name, &doc.Version, &when, &author, &title, &content, &comment)
	if err != nil {
		return nil, err
	}
	doc.Time = time.Unix(when, 0).UTC()
	doc.Author = author.String
	doc.Title = title.String
	doc.Content = content.String
	doc.Comment = comment.String
	return &doc, nil
}

// Get returns the latest version of the named document.
func (s *Store) Get(ctx context.Context, name string) (*Document, error) {
	return getLatest(ctx, s.db.Conn(), name)
}

// GetTx is Get within an existing transaction.
func (s *Store) GetTx(ctx context.Context, tx *sql.Tx, name string) (*Document, error) {
	return getLatest(ctx, tx, name)
}

func getLatest(ctx context.Context, q rowQuerier, name string) (*Document, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+docColumns+" FROM documents WHERE name = ? ORDER BY version DESC LIMIT 1",
		name,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", name, err)
	}
	return doc, nil
}

// GetVersion returns one specific version of the named document.
func (s *Store) GetVersion(ctx context.Context, name string, version int) (*Document, error) {
	row := s.db.Conn().QueryRowContext(ctx,
		"SELECT "+docColumns+" FROM documents WHERE name = ? AND version = ?",
		name, version,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Name: name, Version: version}
	}
	if err != nil {
		return nil, fmt.Errorf("reading document %s version %d: %w", name, version, err)
	}
	return doc, nil
}

// LatestVersion returns the highest stored version of name, or 0 when
// the document does not exist.
func (s *Store) LatestVersion(ctx context.Context, name string) (int, error) {
	return latestVersion(ctx, s.db.Conn(), name)
}

// LatestVersionTx is LatestVersion within an existing transaction.
func (s *Store) LatestVersionTx(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	return latestVersion(ctx, tx, name)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func latestVersion(ctx context.Context, q rowQuerier, name string) (int, error) {
	var version sql.NullInt64
	err := q.QueryRowContext(ctx,
		"SELECT MAX(version) FROM documents WHERE name = ?", name,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading document %s version: %w", name, err)
	}
	return int(version.Int64), nil
}

// Save stores doc as a new version and returns the version number. Line
// endings are normalized and a missing title is derived from the
// content.
func (s *Store) Save(ctx context.Context, doc *Document) (int, error) {
	var version int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		version, err = s.SaveTx(ctx, tx, doc)
		return err
	})
	return version, err
}

// SaveTx stores a new version within an existing transaction.
func (s *Store) SaveTx(ctx context.Context, tx *sql.Tx, doc *Document) (int, error) {
	var current sql.NullInt64
	err := tx.QueryRowContext(ctx,
		"SELECT MAX(version) FROM documents WHERE name = ?", doc.Name,
	).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("reading document %s version: %w", doc.Name, err)
	}
	version := int(current.Int64) + 1

	content := NormalizeEOL(doc.Content)
	title := doc.Title
	if title == "" {
		title = Title(content)
	}
	when := doc.Time
	if when.IsZero() {
		when = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO documents ("+docColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		doc.Name, version, when.Unix(), doc.Author, title, content, doc.Comment,
	)
	if err != nil {
		return 0, fmt.Errorf("saving document %s: %w", doc.Name, err)
	}

	doc.Version = version
	doc.Title = title
	doc.Content = content
	log.Debug(log.CatDoc, "Saved document", "name", doc.Name, "version", version)
	return version, nil
}

// Delete removes all versions of the named document.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.DeleteTx(ctx, tx, name)
	})
}

// DeleteTx removes all versions within an existing transaction.
func (s *Store) DeleteTx(ctx context.Context, tx *sql.Tx, name string) error {
	result, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", name, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Name: name}
	}
	log.Debug(log.CatDoc, "Deleted document", "name", name)
	return nil
}

// Rename moves all versions of a document to a new name.
func (s *Store) Rename(ctx context.Context, oldName, newName string) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.RenameTx(ctx, tx, oldName, newName)
	})
}

// RenameTx moves all versions within an existing transaction.
func (s *Store) RenameTx(ctx context.Context, tx *sql.Tx, oldName, newName string) error {
	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE name = ?", newName,
	).Scan(&count); err != nil {
		return fmt.Errorf("renaming document %s: %w", oldName, err)
	}
	if count > 0 {
		return fmt.Errorf("document %q already exists", newName)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE documents SET name = ? WHERE name = ?", newName, oldName)
	if err != nil {
		return fmt.Errorf("renaming document %s: %w", oldName, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Name: oldName}
	}
	return nil
}

// ListByPrefix returns the latest version of every document whose name
// starts with prefix, ordered by name.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]*Document, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT d.name, d.version, d.time, d.author, d.title, d.content, d.comment
		 FROM documents d
		 JOIN (SELECT name, MAX(version) AS version FROM documents
		       WHERE name LIKE ? GROUP BY name) latest
		   ON d.name = latest.name AND d.version = latest.version
		 ORDER BY d.name`,
		prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents %s*: %w", prefix, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var when int64
		var author, title, content, comment sql.NullString
		if err := rows.Scan(&doc.Name, &doc.Version, &when, &author, &title, &content, &comment); err != nil {
			return nil, fmt.Errorf("listing documents %s*: %w", prefix, err)
		}
		doc.Time = time.Unix(when, 0).UTC()
		doc.Author = author.String
		doc.Title = title.String
		doc.Content = content.String
		doc.Comment = comment.String
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}
