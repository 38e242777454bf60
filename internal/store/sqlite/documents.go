package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lutrinapp/lutrin/internal/domain"
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
)

// documentColumns is the ordered list of columns selected in document queries.
// Must match the scan order in scanDocument.
const documentColumns = `id, owner_id, created_at, updated_at, title, authors,
	description, style, series_name, series_index, cover_image, cover_blur_hash,
	source_name, text, chapter_count, last_chapter_read`

// scanDocument scans a sql.Row (or sql.Rows via its Scan method) into a domain.Document.
func scanDocument(scanner interface{ Scan(dest ...any) error }) (*domain.Document, error) {
	var d domain.Document

	var (
		createdAt     string
		updatedAt     string
		authors       string
		description   sql.NullString
		style         sql.NullString
		seriesName    sql.NullString
		seriesIndex   sql.NullFloat64
		coverImage    sql.NullString
		coverBlurHash sql.NullString
		sourceName    sql.NullString
	)

	err := scanner.Scan(
		&d.ID,
		&d.OwnerID,
		&createdAt,
		&updatedAt,
		&d.Title,
		&authors,
		&description,
		&style,
		&seriesName,
		&seriesIndex,
		&coverImage,
		&coverBlurHash,
		&sourceName,
		&d.Text,
		&d.ChapterCount,
		&d.ReadingProgress.LastChapterRead,
	)
	if err != nil {
		return nil, err
	}

	d.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	d.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(authors), &d.Authors); err != nil {
		return nil, fmt.Errorf("decode authors: %w", err)
	}
	if d.Authors == nil {
		d.Authors = []string{}
	}

	d.Description = description.String
	d.Style = style.String
	d.SeriesName = seriesName.String
	d.CoverImage = coverImage.String
	d.CoverBlurHash = coverBlurHash.String
	d.SourceName = sourceName.String
	if seriesIndex.Valid {
		v := seriesIndex.Float64
		d.SeriesIndex = &v
	}

	return &d, nil
}

func encodeAuthors(authors []string) (string, error) {
	if authors == nil {
		authors = []string{}
	}
	data, err := json.Marshal(authors)
	if err != nil {
		return "", fmt.Errorf("encode authors: %w", err)
	}
	return string(data), nil
}

// Create inserts a document and assigns its id.
func (s *Store) Create(ctx context.Context, doc *domain.Document) (int64, error) {
	authors, err := encodeAuthors(doc.Authors)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (
			owner_id, created_at, updated_at, title, authors,
			description, style, series_name, series_index, cover_image, cover_blur_hash,
			source_name, text, chapter_count, last_chapter_read
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.OwnerID,
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
		doc.Title,
		authors,
		nullString(doc.Description),
		nullString(doc.Style),
		nullString(doc.SeriesName),
		nullFloat(doc.SeriesIndex),
		nullString(doc.CoverImage),
		nullString(doc.CoverBlurHash),
		nullString(doc.SourceName),
		doc.Text,
		doc.ChapterCount,
		doc.ReadingProgress.LastChapterRead,
	)
	if err != nil {
		return 0, fmt.Errorf("create document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read document id: %w", err)
	}
	doc.ID = id
	if doc.Authors == nil {
		doc.Authors = []string{}
	}

	if s.logger != nil {
		s.logger.Debug("document created", "document_id", id, "owner_id", doc.OwnerID)
	}
	s.Created(doc)
	return id, nil
}

// GetByID retrieves a document by id.
func (s *Store) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("document %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

// ListByOwner returns all documents of an owner.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	return s.query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = ?`, ownerID)
}

// ListAll returns every document in the library.
func (s *Store) ListAll(ctx context.Context) ([]*domain.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []*domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Update replaces every column of an existing document.
func (s *Store) Update(ctx context.Context, doc *domain.Document) error {
	if doc.ID <= 0 {
		return domainerrors.Validation("document id is required")
	}
	authors, err := encodeAuthors(doc.Authors)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET
			owner_id = ?, created_at = ?, updated_at = ?, title = ?, authors = ?,
			description = ?, style = ?, series_name = ?, series_index = ?,
			cover_image = ?, cover_blur_hash = ?, source_name = ?, text = ?,
			chapter_count = ?, last_chapter_read = ?
		WHERE id = ?`,
		doc.OwnerID,
		formatTime(doc.CreatedAt),
		formatTime(doc.UpdatedAt),
		doc.Title,
		authors,
		nullString(doc.Description),
		nullString(doc.Style),
		nullString(doc.SeriesName),
		nullFloat(doc.SeriesIndex),
		nullString(doc.CoverImage),
		nullString(doc.CoverBlurHash),
		nullString(doc.SourceName),
		doc.Text,
		doc.ChapterCount,
		doc.ReadingProgress.LastChapterRead,
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update document %d: %w", doc.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domainerrors.NotFoundf("document %d not found", doc.ID)
	}
	if doc.Authors == nil {
		doc.Authors = []string{}
	}

	s.Updated(doc)
	return nil
}

// SetProgress records the last chapter read in a single statement.
func (s *Store) SetProgress(ctx context.Context, id int64, lastChapterRead int) error {
	if lastChapterRead < 0 {
		return domainerrors.Validationf("last chapter read must not be negative, got %d", lastChapterRead)
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE documents SET last_chapter_read = ? WHERE id = ? RETURNING `+documentColumns,
		lastChapterRead, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domainerrors.NotFoundf("document %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("set progress of document %d: %w", id, err)
	}

	s.Updated(doc)
	return nil
}

// DeleteByID removes a document. Missing ids are ignored.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM documents WHERE id = ? RETURNING owner_id`, id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}

	if s.logger != nil {
		s.logger.Debug("document deleted", "document_id", id, "owner_id", ownerID)
	}
	s.Deleted(ownerID, id)
	return nil
}
