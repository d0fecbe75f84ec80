package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-viewer/internal/apperr"
)

// accessKeyCodeBytes is the random byte length backing an AccessKey.Code,
// long enough that guessing a live key is infeasible within its expiry.
const accessKeyCodeBytes = 20

func newAccessKeyCode() (string, error) {
	buf := make([]byte, accessKeyCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CreateAccessGroup inserts a new group owned by ownerID and seeds its
// membership roster with the owner at RoleOwner.
func (d *Database) CreateAccessGroup(ctx context.Context, slug, name string, ownerID int64) (*AccessGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("create_access_group")
	slug = NormalizeSlug(slug)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "begin create access group", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO access_groups (slug, name, owner_id) VALUES (?, ?, ?)",
		slug, name, ownerID,
	)
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Conflict, "insert access group", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "read access group id", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO group_memberships (group_id, user_id, role) VALUES (?, ?, ?)",
		id, ownerID, string(RoleOwner),
	); err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "seed owner membership", err)
	}

	if err := tx.Commit(); err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "commit create access group", err)
	}
	committed = true
	done(nil)

	return &AccessGroup{ID: id, Slug: slug, Name: name, OwnerID: ownerID, CreatedAt: time.Now()}, nil
}

// GetAccessGroupBySlug returns nil, nil when no such group exists.
func (d *Database) GetAccessGroupBySlug(ctx context.Context, slug string) (*AccessGroup, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("get_access_group")
	var g AccessGroup
	var createdAt int64
	err := d.db.QueryRowContext(ctx,
		"SELECT id, slug, name, owner_id, created_at FROM access_groups WHERE slug = ?", slug,
	).Scan(&g.ID, &g.Slug, &g.Name, &g.OwnerID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "get access group by slug", err)
	}
	done(nil)
	g.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &g, nil
}

// DeleteAccessGroup removes a group and, via ON DELETE CASCADE, its
// memberships and any access keys bound to it.
func (d *Database) DeleteAccessGroup(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("delete_access_group")
	res, err := d.db.ExecContext(ctx, "DELETE FROM access_groups WHERE id = ?", id)
	if err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "delete access group", err)
	}
	n, _ := res.RowsAffected()
	done(nil)
	if n == 0 {
		return apperr.New(apperr.NotFound, "access group not found")
	}
	return nil
}

// AddGroupMembership inserts or replaces a user's role within a group.
func (d *Database) AddGroupMembership(ctx context.Context, groupID, userID int64, role Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("add_group_membership")
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO group_memberships (group_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT(group_id, user_id) DO UPDATE SET role = excluded.role`,
		groupID, userID, string(role),
	)
	done(err)
	if err != nil {
		return apperr.Wrap(apperr.Database, "add group membership", err)
	}
	return nil
}

// RemoveGroupMembership evicts a user from a group.
func (d *Database) RemoveGroupMembership(ctx context.Context, groupID, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("remove_group_membership")
	res, err := d.db.ExecContext(ctx,
		"DELETE FROM group_memberships WHERE group_id = ? AND user_id = ?", groupID, userID,
	)
	if err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "remove group membership", err)
	}
	n, _ := res.RowsAffected()
	done(nil)
	if n == 0 {
		return apperr.New(apperr.NotFound, "group membership not found")
	}
	return nil
}

// GetGroupMembership returns nil, nil when the user has no role in the group.
func (d *Database) GetGroupMembership(ctx context.Context, groupID, userID int64) (*GroupMembership, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("get_group_membership")
	var m GroupMembership
	var role string
	var joinedAt int64
	err := d.db.QueryRowContext(ctx,
		"SELECT group_id, user_id, role, joined_at FROM group_memberships WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&m.GroupID, &m.UserID, &role, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "get group membership", err)
	}
	done(nil)
	m.Role = Role(role)
	m.JoinedAt = time.Unix(joinedAt, 0).UTC()
	return &m, nil
}

// ListGroupMembers returns every membership row for a group, ordered by join time.
func (d *Database) ListGroupMembers(ctx context.Context, groupID int64) ([]GroupMembership, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("list_group_members")
	rows, err := d.db.QueryContext(ctx,
		"SELECT group_id, user_id, role, joined_at FROM group_memberships WHERE group_id = ? ORDER BY joined_at ASC",
		groupID,
	)
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "list group members", err)
	}
	defer rows.Close()

	var out []GroupMembership
	for rows.Next() {
		var m GroupMembership
		var role string
		var joinedAt int64
		if err := rows.Scan(&m.GroupID, &m.UserID, &role, &joinedAt); err != nil {
			done(err)
			return nil, apperr.Wrap(apperr.Database, "scan group membership", err)
		}
		m.Role = Role(role)
		m.JoinedAt = time.Unix(joinedAt, 0).UTC()
		out = append(out, m)
	}
	done(rows.Err())
	return out, rows.Err()
}

// ListMembershipsForUserInGroups returns userID's membership row for each of
// groupIDs that has one, keyed by group id. It backs the access engine's
// BatchCheckAccess: resolving N resources against N candidate groups in one
// query instead of one GetGroupMembership call per resource.
func (d *Database) ListMembershipsForUserInGroups(ctx context.Context, userID int64, groupIDs []int64) (map[int64]GroupMembership, error) {
	out := make(map[int64]GroupMembership, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("list_memberships_for_user")

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(groupIDs)), ",")
	args := make([]any, 0, len(groupIDs)+1)
	args = append(args, userID)
	for _, gid := range groupIDs {
		args = append(args, gid)
	}

	query := fmt.Sprintf(
		"SELECT group_id, user_id, role, joined_at FROM group_memberships WHERE user_id = ? AND group_id IN (%s)",
		placeholders,
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "list memberships for user", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m GroupMembership
		var role string
		var joinedAt int64
		if err := rows.Scan(&m.GroupID, &m.UserID, &role, &joinedAt); err != nil {
			done(err)
			return nil, apperr.Wrap(apperr.Database, "scan membership", err)
		}
		m.Role = Role(role)
		m.JoinedAt = time.Unix(joinedAt, 0).UTC()
		out[m.GroupID] = m
	}
	done(rows.Err())
	return out, rows.Err()
}

// CreateAccessKey mints a new opaque key. boundGroup, when non-nil, ties the
// key's grant to every resource in that group instead of a pinned item set.
func (d *Database) CreateAccessKey(ctx context.Context, ownerID int64, description string, permission Permission, expiresAt *time.Time, boundGroup *int64) (*AccessKey, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("create_access_key")

	code, err := newAccessKeyCode()
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "generate access key code", err)
	}

	var expiresUnix any
	if expiresAt != nil {
		expiresUnix = expiresAt.Unix()
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO access_keys (code, description, owner_id, permission, expires_at, bound_group_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		code, description, ownerID, permission.String(), expiresUnix, boundGroup,
	)
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "insert access key", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "read access key id", err)
	}
	done(nil)

	return &AccessKey{
		ID: id, Code: code, Description: description, OwnerID: ownerID,
		Permission: permission, ExpiresAt: expiresAt, BoundGroup: boundGroup,
		CreatedAt: time.Now(),
	}, nil
}

// GetAccessKeyByCode returns nil, nil when the code does not match a live key.
func (d *Database) GetAccessKeyByCode(ctx context.Context, code string) (*AccessKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("get_access_key")
	var k AccessKey
	var permission string
	var expiresAt, boundGroup sql.NullInt64
	var createdAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT id, code, description, owner_id, permission, expires_at, bound_group_id, created_at
		 FROM access_keys WHERE code = ?`, code,
	).Scan(&k.ID, &k.Code, &k.Description, &k.OwnerID, &permission, &expiresAt, &boundGroup, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "get access key by code", err)
	}
	done(nil)

	k.Permission, _ = ParsePermission(permission)
	k.CreatedAt = time.Unix(createdAt, 0).UTC()
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0).UTC()
		k.ExpiresAt = &t
	}
	if boundGroup.Valid {
		k.BoundGroup = &boundGroup.Int64
	}
	return &k, nil
}

// GetAccessKeyByID returns nil, nil when no key has that id.
func (d *Database) GetAccessKeyByID(ctx context.Context, id int64) (*AccessKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("get_access_key_by_id")
	var k AccessKey
	var permission string
	var expiresAt, boundGroup sql.NullInt64
	var createdAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT id, code, description, owner_id, permission, expires_at, bound_group_id, created_at
		 FROM access_keys WHERE id = ?`, id,
	).Scan(&k.ID, &k.Code, &k.Description, &k.OwnerID, &permission, &expiresAt, &boundGroup, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		done(nil)
		return nil, nil
	}
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "get access key by id", err)
	}
	done(nil)

	k.Permission, _ = ParsePermission(permission)
	k.CreatedAt = time.Unix(createdAt, 0).UTC()
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0).UTC()
		k.ExpiresAt = &t
	}
	if boundGroup.Valid {
		k.BoundGroup = &boundGroup.Int64
	}
	return &k, nil
}

// RegenerateAccessKeyCode mints a fresh opaque code for an existing key and
// returns it, invalidating the old one immediately: any holder presenting
// the previous code falls through to Public on their next request.
func (d *Database) RegenerateAccessKeyCode(ctx context.Context, id int64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("regenerate_access_key_code")

	code, err := newAccessKeyCode()
	if err != nil {
		done(err)
		return "", apperr.Wrap(apperr.Database, "generate access key code", err)
	}

	res, err := d.db.ExecContext(ctx, "UPDATE access_keys SET code = ? WHERE id = ?", code, id)
	if err != nil {
		done(err)
		return "", apperr.Wrap(apperr.Database, "regenerate access key code", err)
	}
	n, _ := res.RowsAffected()
	done(nil)
	if n == 0 {
		return "", apperr.New(apperr.NotFound, "access key not found")
	}
	return code, nil
}

// RevokeAccessKey deletes a key, cascading to its AccessKeyItems.
func (d *Database) RevokeAccessKey(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("revoke_access_key")
	res, err := d.db.ExecContext(ctx, "DELETE FROM access_keys WHERE id = ?", id)
	if err != nil {
		done(err)
		return apperr.Wrap(apperr.Database, "revoke access key", err)
	}
	n, _ := res.RowsAffected()
	done(nil)
	if n == 0 {
		return apperr.New(apperr.NotFound, "access key not found")
	}
	return nil
}

// ListAccessKeysForOwner returns every key an owner has minted, newest first.
func (d *Database) ListAccessKeysForOwner(ctx context.Context, ownerID int64) ([]AccessKey, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("list_access_keys")
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, code, description, owner_id, permission, expires_at, bound_group_id, created_at
		 FROM access_keys WHERE owner_id = ? ORDER BY created_at DESC`, ownerID,
	)
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "list access keys", err)
	}
	defer rows.Close()

	var out []AccessKey
	for rows.Next() {
		var k AccessKey
		var permission string
		var expiresAt, boundGroup sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&k.ID, &k.Code, &k.Description, &k.OwnerID, &permission, &expiresAt, &boundGroup, &createdAt); err != nil {
			done(err)
			return nil, apperr.Wrap(apperr.Database, "scan access key", err)
		}
		k.Permission, _ = ParsePermission(permission)
		k.CreatedAt = time.Unix(createdAt, 0).UTC()
		if expiresAt.Valid {
			t := time.Unix(expiresAt.Int64, 0).UTC()
			k.ExpiresAt = &t
		}
		if boundGroup.Valid {
			k.BoundGroup = &boundGroup.Int64
		}
		out = append(out, k)
	}
	done(rows.Err())
	return out, rows.Err()
}

// AddAccessKeyItem pins a resource to a key's grant set. Idempotent.
func (d *Database) AddAccessKeyItem(ctx context.Context, keyID, resourceID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("add_access_key_item")
	_, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO access_key_items (key_id, resource_id) VALUES (?, ?)", keyID, resourceID,
	)
	done(err)
	if err != nil {
		return apperr.Wrap(apperr.Database, "add access key item", err)
	}
	return nil
}

// RemoveAccessKeyItem unpins a resource from a key's grant set.
func (d *Database) RemoveAccessKeyItem(ctx context.Context, keyID, resourceID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("remove_access_key_item")
	_, err := d.db.ExecContext(ctx,
		"DELETE FROM access_key_items WHERE key_id = ? AND resource_id = ?", keyID, resourceID,
	)
	done(err)
	if err != nil {
		return apperr.Wrap(apperr.Database, "remove access key item", err)
	}
	return nil
}

// ListAccessKeyItems returns the resource ids pinned to a key.
func (d *Database) ListAccessKeyItems(ctx context.Context, keyID int64) ([]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	done := observeQuery("list_access_key_items")
	rows, err := d.db.QueryContext(ctx, "SELECT resource_id FROM access_key_items WHERE key_id = ?", keyID)
	if err != nil {
		done(err)
		return nil, apperr.Wrap(apperr.Database, "list access key items", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			done(err)
			return nil, apperr.Wrap(apperr.Database, "scan access key item", err)
		}
		out = append(out, id)
	}
	done(rows.Err())
	return out, rows.Err()
}
