package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"media-viewer/internal/apperr"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,199}$`)

// NormalizeSlug lowercases, replaces runs of non-alphanumerics with '-', and
// trims leading/trailing '-' so the result matches slugPattern.
func NormalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "item"
	}
	if len(out) > 200 {
		out = out[:200]
	}
	return out
}

func randomSuffix() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// CreateMedia allocates an id, ensures slug uniqueness (appending a short
// random suffix on collision unless strict is requested), inserts the row
// in Draft, and returns the final id and slug.
func (d *Database) CreateMedia(ctx context.Context, item *MediaItem, strictSlug bool) (int64, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("create_media")

	slug := NormalizeSlug(item.Slug)
	if slug == "item" && item.Title != "" {
		slug = NormalizeSlug(item.Title)
	}
	if slug == "item" && item.Filename != "" {
		slug = NormalizeSlug(item.Filename)
	}

	attempt := slug
	for i := 0; i < 1000; i++ {
		var exists bool
		if err := d.db.QueryRowContext(ctx,
			"SELECT COUNT(*) > 0 FROM media_items WHERE slug = ?", attempt,
		).Scan(&exists); err != nil {
			done(err)
			return 0, "", apperr.Wrap(apperr.Database, "check slug uniqueness", err)
		}
		if !exists {
			break
		}
		if strictSlug {
			done(nil)
			return 0, "", apperr.New(apperr.Conflict, fmt.Sprintf("slug %q already in use", slug))
		}
		attempt = fmt.Sprintf("%s-%s", slug, randomSuffix())
	}
	slug = attempt

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO media_items (
			slug, kind, filename, mime_type, size, storage_path, visibility,
			owner_id, group_id, status, title, description
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		slug, item.Kind, item.Filename, item.MimeType, item.Size, item.StoragePath,
		visibilityOrDefault(item.Visibility), item.OwnerID, item.GroupID,
		StatusDraft, item.Title, item.Description,
	)
	done(err)
	if err != nil {
		return 0, "", apperr.Wrap(apperr.Database, "insert media item", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, "", apperr.Wrap(apperr.Database, "read inserted media id", err)
	}
	return id, slug, nil
}

func visibilityOrDefault(v Visibility) Visibility {
	if v == "" {
		return VisibilityPrivate
	}
	return v
}

// UpdateMediaFields applies a subset-patch atomically, including tag
// junction updates, rejecting status transitions outside the DAG.
func (d *Database) UpdateMediaFields(ctx context.Context, id int64, patch Patch) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("update_media_fields")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "begin update transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if patch.Status != nil {
		var current Status
		if err := tx.QueryRowContext(ctx, "SELECT status FROM media_items WHERE id = ?", id).Scan(&current); err != nil {
			done(err)
			if err == sql.ErrNoRows {
				return apperr.New(apperr.NotFound, "media item not found")
			}
			return apperr.Wrap(apperr.Database, "read current status", err)
		}
		if !CanTransition(current, *patch.Status) {
			done(nil)
			return apperr.New(apperr.Validation, fmt.Sprintf("illegal status transition %s -> %s", current, *patch.Status))
		}
	}

	set, args := buildPatchSet(patch)
	if len(set) > 0 {
		args = append(args, id)
		query := fmt.Sprintf("UPDATE media_items SET %s, updated_at = strftime('%%s', 'now') WHERE id = ?", strings.Join(set, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			done(err)
			return apperr.Wrap(apperr.Database, "update media item", err)
		}
	}

	if patch.Tags != nil {
		if err := replaceMediaTagsTx(ctx, tx, id, *patch.Tags); err != nil {
			done(err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "commit update transaction", err)
	}
	committed = true
	done(nil)
	return nil
}

func buildPatchSet(p Patch) ([]string, []any) {
	var set []string
	var args []any
	add := func(col string, val any) {
		set = append(set, col+" = ?")
		args = append(args, val)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Visibility != nil {
		add("visibility", *p.Visibility)
	}
	if p.GroupID != nil {
		add("group_id", *p.GroupID)
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.Thumbnail != nil {
		add("thumbnail_path", *p.Thumbnail)
	}
	if p.Width != nil {
		add("width", *p.Width)
	}
	if p.Height != nil {
		add("height", *p.Height)
	}
	if p.AspectRatio != nil {
		add("aspect_ratio", *p.AspectRatio)
	}
	if p.Duration != nil {
		add("duration_seconds", *p.Duration)
	}
	if p.Codec != nil {
		add("codec", *p.Codec)
	}
	if p.FPS != nil {
		add("fps", *p.FPS)
	}
	if p.HLSMasterPath != nil {
		add("hls_master_path", *p.HLSMasterPath)
	}
	if p.DominantColor != nil {
		add("dominant_color", *p.DominantColor)
	}
	if p.ExifJSON != nil {
		add("exif_json", *p.ExifJSON)
	}
	if p.PageCount != nil {
		add("page_count", *p.PageCount)
	}
	if p.Author != nil {
		add("author", *p.Author)
	}
	if p.Language != nil {
		add("language", *p.Language)
	}
	if p.RowCount != nil {
		add("row_count", *p.RowCount)
	}
	if p.ColumnCount != nil {
		add("column_count", *p.ColumnCount)
	}
	if p.CSVDelimiter != nil {
		add("csv_delimiter", *p.CSVDelimiter)
	}
	return set, args
}

const mediaItemColumns = `
	id, slug, kind, filename, mime_type, size, storage_path, thumbnail_path,
	visibility, owner_id, group_id, status, title, description,
	width, height, aspect_ratio, duration_seconds, codec, fps, hls_master_path,
	dominant_color, exif_json, page_count, author, language, row_count,
	column_count, csv_delimiter, error_message, created_at, updated_at
`

func scanMediaItem(row interface {
	Scan(dest ...any) error
}) (*MediaItem, error) {
	var m MediaItem
	var thumbnail, aspectRatio, codec, hlsMaster, dominantColor, exifJSON sql.NullString
	var author, language, csvDelimiter, errorMessage sql.NullString
	var width, height, pageCount, rowCount, columnCount sql.NullInt64
	var duration, fps sql.NullFloat64
	var ownerID, groupID sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&m.ID, &m.Slug, &m.Kind, &m.Filename, &m.MimeType, &m.Size, &m.StoragePath, &thumbnail,
		&m.Visibility, &ownerID, &groupID, &m.Status, &m.Title, &m.Description,
		&width, &height, &aspectRatio, &duration, &codec, &fps, &hlsMaster,
		&dominantColor, &exifJSON, &pageCount, &author, &language, &rowCount,
		&columnCount, &csvDelimiter, &errorMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Thumbnail = thumbnail.String
	m.AspectRatio = aspectRatio.String
	m.Codec = codec.String
	m.HLSMasterPath = hlsMaster.String
	m.DominantColor = dominantColor.String
	m.ExifJSON = exifJSON.String
	m.Author = author.String
	m.Language = language.String
	m.CSVDelimiter = csvDelimiter.String
	m.Width = int(width.Int64)
	m.Height = int(height.Int64)
	m.DurationSeconds = duration.Float64
	m.FPS = fps.Float64
	m.PageCount = int(pageCount.Int64)
	m.RowCount = int(rowCount.Int64)
	m.ColumnCount = int(columnCount.Int64)
	if ownerID.Valid {
		v := ownerID.Int64
		m.OwnerID = &v
	}
	if groupID.Valid {
		v := groupID.Int64
		m.GroupID = &v
	}
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	return &m, nil
}

// GetBySlug returns the media item with the given slug, or nil if absent.
func (d *Database) GetBySlug(ctx context.Context, slug string) (*MediaItem, error) {
	return d.getByColumn(ctx, "get_by_slug", "slug", slug)
}

// GetByID returns the media item with the given id, or nil if absent.
func (d *Database) GetByID(ctx context.Context, id int64) (*MediaItem, error) {
	return d.getByColumn(ctx, "get_by_id", "id", id)
}

func (d *Database) getByColumn(ctx context.Context, op, column string, value any) (*MediaItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery(op)
	query := fmt.Sprintf("SELECT %s FROM media_items WHERE %s = ?", mediaItemColumns, column)
	row := d.db.QueryRowContext(ctx, query, value)
	item, err := scanMediaItem(row)
	if err == sql.ErrNoRows {
		done(nil)
		return nil, nil
	}
	done(err)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, op, err)
	}

	tags, terr := d.tagsForMedia(ctx, item.ID)
	if terr != nil {
		return nil, apperr.Wrap(apperr.Database, "load tags for media item", terr)
	}
	item.Tags = tags
	return item, nil
}

var listSortColumns = map[SortKey]string{
	SortCreatedAt: "created_at",
	SortUpdatedAt: "updated_at",
	SortTitle:     "title COLLATE NOCASE",
	SortDuration:  "duration_seconds",
}

// List returns media items matching filter, ordered per sort and paginated.
func (d *Database) List(ctx context.Context, filter ListFilter, page Pagination, sort Sort) ([]*MediaItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("list")

	var where []string
	var args []any

	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, *filter.OwnerID)
	}
	if filter.GroupID != nil {
		where = append(where, "group_id = ?")
		args = append(args, *filter.GroupID)
	}
	if filter.Visibility != "" {
		where = append(where, "visibility = ?")
		args = append(args, filter.Visibility)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.TextQuery != "" {
		where = append(where, "id IN (SELECT rowid FROM media_items_fts WHERE media_items_fts MATCH ?)")
		args = append(args, filter.TextQuery)
	}
	if len(filter.TagAny) > 0 {
		placeholders := make([]string, len(filter.TagAny))
		for i, t := range filter.TagAny {
			placeholders[i] = "?"
			args = append(args, t)
		}
		where = append(where, fmt.Sprintf(`id IN (
			SELECT mt.media_id FROM media_tags mt JOIN tags t ON t.id = mt.tag_id
			WHERE t.name IN (%s)
		)`, strings.Join(placeholders, ", ")))
	}
	if len(filter.TagAll) > 0 {
		for _, t := range filter.TagAll {
			where = append(where, `id IN (
				SELECT mt.media_id FROM media_tags mt JOIN tags tg ON tg.id = mt.tag_id
				WHERE tg.name = ?
			)`)
			args = append(args, t)
		}
	}

	sortCol, ok := listSortColumns[sort.Key]
	if !ok {
		sortCol = listSortColumns[SortCreatedAt]
	}
	direction := "ASC"
	if sort.Desc {
		direction = "DESC"
	}

	limit := page.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := fmt.Sprintf("SELECT %s FROM media_items", mediaItemColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s LIMIT ? OFFSET ?", sortCol, direction)
	args = append(args, limit, page.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	done(err)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "list media items", err)
	}
	defer rows.Close()

	var items []*MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan media item row", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Delete removes a media item and its junction rows in one transaction.
// File artifact cleanup is the caller's responsibility (via internal/storage);
// orphaned files are accepted and swept later, per spec.
func (d *Database) Delete(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("delete")

	result, err := d.db.ExecContext(ctx, "DELETE FROM media_items WHERE id = ?", id)
	done(err)
	if err != nil {
		return apperr.Wrap(apperr.Database, "delete media item", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.New(apperr.NotFound, "media item not found")
	}
	return nil
}

// ValidSlug reports whether s matches the slug pattern
// ^[a-z0-9][a-z0-9-]{0,199}$.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}
