package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-viewer/internal/apperr"
	"media-viewer/internal/logging"
)

// UpsertTag gets an existing tag by name or creates a new one.
func (d *Database) UpsertTag(ctx context.Context, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.Validation, "tag name cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("upsert_tag")

	tag, err := d.getTagByNameUnlocked(ctx, name)
	if err == nil {
		done(nil)
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "look up tag", err)
	}

	slug := NormalizeSlug(name)
	result, err := d.db.ExecContext(ctx, "INSERT INTO tags (name, slug) VALUES (?, ?)", name, slug)
	done(err)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "create tag", err)
	}

	id, _ := result.LastInsertId()
	return &Tag{ID: id, Name: name, Slug: slug, CreatedAt: time.Now()}, nil
}

func (d *Database) getTagByNameUnlocked(ctx context.Context, name string) (*Tag, error) {
	var t Tag
	var color, icon, category sql.NullString
	var createdAt int64
	err := d.db.QueryRowContext(ctx,
		"SELECT id, name, slug, color, icon, category, usage_count, created_at FROM tags WHERE name = ? COLLATE NOCASE",
		name,
	).Scan(&t.ID, &t.Name, &t.Slug, &color, &icon, &category, &t.UsageCount, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Color = color.String
	t.Icon = icon.String
	t.Category = category.String
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// AttachTags ensures a junction row exists for (resourceID, each tag name),
// creating tags as needed. Re-attaching an already-attached tag is a no-op
// (INSERT OR IGNORE), satisfying attach_tags idempotence.
func (d *Database) AttachTags(ctx context.Context, resourceID int64, names []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("attach_tags")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "begin attach_tags transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := attachTagsTx(ctx, tx, resourceID, names); err != nil {
		done(err)
		return err
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "commit attach_tags transaction", err)
	}
	committed = true
	done(nil)
	return nil
}

func attachTagsTx(ctx context.Context, tx *sql.Tx, resourceID int64, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		var tagID int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ? COLLATE NOCASE", name).Scan(&tagID)
		if errors.Is(err, sql.ErrNoRows) {
			result, cerr := tx.ExecContext(ctx, "INSERT INTO tags (name, slug) VALUES (?, ?)", name, NormalizeSlug(name))
			if cerr != nil {
				return apperr.Wrap(apperr.Database, "create tag", cerr)
			}
			tagID, _ = result.LastInsertId()
		} else if err != nil {
			return apperr.Wrap(apperr.Database, "look up tag", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO media_tags (media_id, tag_id) VALUES (?, ?)", resourceID, tagID,
		); err != nil {
			return apperr.Wrap(apperr.Database, "attach tag", err)
		}
	}
	return nil
}

// replaceMediaTagsTx removes every existing junction row for resourceID and
// reattaches exactly the given tag names, used by update_media_fields's
// patch.Tags handling so the full tag set is replaced atomically.
func replaceMediaTagsTx(ctx context.Context, tx *sql.Tx, resourceID int64, names []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM media_tags WHERE media_id = ?", resourceID); err != nil {
		return apperr.Wrap(apperr.Database, "clear existing tags", err)
	}
	return attachTagsTx(ctx, tx, resourceID, names)
}

// DetachTag removes the junction row for (resourceID, tagName), if any.
func (d *Database) DetachTag(ctx context.Context, resourceID int64, tagName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("detach_tag")
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM media_tags
		WHERE media_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ? COLLATE NOCASE)
	`, resourceID, tagName)
	done(err)
	if err != nil {
		return apperr.Wrap(apperr.Database, "detach tag", err)
	}
	return nil
}

func (d *Database) tagsForMedia(ctx context.Context, resourceID int64) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN media_tags mt ON mt.tag_id = t.id
		WHERE mt.media_id = ?
		ORDER BY t.name COLLATE NOCASE
	`, resourceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logging.Error("error closing rows: %v", cerr)
		}
	}()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListTagsFilter narrows list_tags; an empty NameQuery matches every tag.
type ListTagsFilter struct {
	NameQuery string
}

// ListTags returns tags matching filter, ordered by name.
func (d *Database) ListTags(ctx context.Context, filter ListTagsFilter) ([]*Tag, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("list_tags")

	query := "SELECT id, name, slug, color, icon, category, usage_count, created_at FROM tags"
	var args []any
	if filter.NameQuery != "" {
		query += " WHERE name LIKE ? COLLATE NOCASE"
		args = append(args, "%"+filter.NameQuery+"%")
	}
	query += " ORDER BY name COLLATE NOCASE"

	rows, err := d.db.QueryContext(ctx, query, args...)
	done(err)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "list tags", err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		var t Tag
		var color, icon, category sql.NullString
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &color, &icon, &category, &t.UsageCount, &createdAt); err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan tag row", err)
		}
		t.Color = color.String
		t.Icon = icon.String
		t.Category = category.String
		t.CreatedAt = time.Unix(createdAt, 0)
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// PopularTags returns the n tags with the highest usage_count.
func (d *Database) PopularTags(ctx context.Context, n int) ([]*Tag, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if n <= 0 {
		n = 10
	}

	done := observeQuery("popular_tags")
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, slug, color, icon, category, usage_count, created_at
		FROM tags ORDER BY usage_count DESC, name COLLATE NOCASE LIMIT ?
	`, n)
	done(err)
	if err != nil {
		return nil, apperr.Wrap(apperr.Database, "popular tags", err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		var t Tag
		var color, icon, category sql.NullString
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &color, &icon, &category, &t.UsageCount, &createdAt); err != nil {
			return nil, apperr.Wrap(apperr.Database, "scan tag row", err)
		}
		t.Color = color.String
		t.Icon = icon.String
		t.Category = category.String
		t.CreatedAt = time.Unix(createdAt, 0)
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// MergeTags rewrites every junction row pointing at src to point at dst,
// recomputes dst's usage_count, and deletes src. Junction uniqueness
// (media_id, tag_id) collapses duplicate (resource already tagged with
// both src and dst) into a single row.
func (d *Database) MergeTags(ctx context.Context, src, dst string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("merge_tags")

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "begin merge_tags transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var srcID, dstID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ? COLLATE NOCASE", src).Scan(&srcID); err != nil {
		done(err)
		return apperr.Wrap(apperr.NotFound, fmt.Sprintf("source tag %q not found", src), err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ? COLLATE NOCASE", dst).Scan(&dstID); err != nil {
		done(err)
		return apperr.Wrap(apperr.NotFound, fmt.Sprintf("destination tag %q not found", dst), err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO media_tags (media_id, tag_id) SELECT media_id, ? FROM media_tags WHERE tag_id = ?",
		dstID, srcID,
	); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "rewrite junctions to destination tag", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", srcID); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "delete source tag", err)
	}

	var usage int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM media_tags WHERE tag_id = ?", dstID).Scan(&usage); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "recompute usage_count", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE tags SET usage_count = ? WHERE id = ?", usage, dstID); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "update usage_count", err)
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "commit merge_tags transaction", err)
	}
	committed = true
	done(nil)
	return nil
}
