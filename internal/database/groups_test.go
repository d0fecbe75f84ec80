package database

import (
	"context"
	"testing"
	"time"
)

func TestCreateAccessGroupSeedsOwnerMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g, err := db.CreateAccessGroup(ctx, "Team Rocket", "Team Rocket", 1)
	if err != nil {
		t.Fatalf("CreateAccessGroup: %v", err)
	}
	if g.Slug != "team-rocket" {
		t.Errorf("slug = %q, want team-rocket", g.Slug)
	}

	m, err := db.GetGroupMembership(ctx, g.ID, 1)
	if err != nil {
		t.Fatalf("GetGroupMembership: %v", err)
	}
	if m == nil || m.Role != RoleOwner {
		t.Fatalf("expected owner membership, got %+v", m)
	}
}

func TestAddAndRemoveGroupMembership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g, err := db.CreateAccessGroup(ctx, "friends", "friends", 1)
	if err != nil {
		t.Fatalf("CreateAccessGroup: %v", err)
	}

	if err := db.AddGroupMembership(ctx, g.ID, 2, RoleViewer); err != nil {
		t.Fatalf("AddGroupMembership: %v", err)
	}
	members, err := db.ListGroupMembers(ctx, g.ID)
	if err != nil {
		t.Fatalf("ListGroupMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members (owner + viewer), got %d", len(members))
	}

	if err := db.AddGroupMembership(ctx, g.ID, 2, RoleEditor); err != nil {
		t.Fatalf("re-AddGroupMembership to change role: %v", err)
	}
	m, err := db.GetGroupMembership(ctx, g.ID, 2)
	if err != nil {
		t.Fatalf("GetGroupMembership: %v", err)
	}
	if m.Role != RoleEditor {
		t.Errorf("role after upsert = %s, want editor", m.Role)
	}

	if err := db.RemoveGroupMembership(ctx, g.ID, 2); err != nil {
		t.Fatalf("RemoveGroupMembership: %v", err)
	}
	if m, err := db.GetGroupMembership(ctx, g.ID, 2); err != nil || m != nil {
		t.Errorf("expected membership to be gone, got %+v, err %v", m, err)
	}
}

func TestDeleteAccessGroupUnknownIDNotFound(t *testing.T) {
	db := newTestDB(t)
	err := db.DeleteAccessGroup(context.Background(), 9999)
	if err == nil {
		t.Fatal("expected NotFound error for unknown group id")
	}
}

func TestCreateAccessKeyAndLookupByCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	expires := time.Now().Add(24 * time.Hour)
	key, err := db.CreateAccessKey(ctx, 1, "shared with family", PermissionDownload, &expires, nil)
	if err != nil {
		t.Fatalf("CreateAccessKey: %v", err)
	}
	if key.Code == "" {
		t.Fatal("expected a non-empty generated code")
	}

	got, err := db.GetAccessKeyByCode(ctx, key.Code)
	if err != nil {
		t.Fatalf("GetAccessKeyByCode: %v", err)
	}
	if got == nil {
		t.Fatal("expected to find the key by code")
	}
	if got.Permission != PermissionDownload {
		t.Errorf("permission = %s, want download", got.Permission)
	}
	if got.ExpiresAt == nil {
		t.Fatal("expected expires_at to round-trip")
	}
	if got.Expired(time.Now()) {
		t.Error("key should not be expired yet")
	}
	if !got.Expired(time.Now().Add(48 * time.Hour)) {
		t.Error("key should be expired 48h from now")
	}
}

func TestGetAccessKeyByCodeMissingReturnsNilNotError(t *testing.T) {
	db := newTestDB(t)
	got, err := db.GetAccessKeyByCode(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for an unknown code")
	}
}

func TestRevokeAccessKeyRemovesItAndItems(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	key, err := db.CreateAccessKey(ctx, 1, "temp", PermissionRead, nil, nil)
	if err != nil {
		t.Fatalf("CreateAccessKey: %v", err)
	}
	id, _, err := db.CreateMedia(ctx, &MediaItem{Kind: KindImage, Filename: "a.jpg", MimeType: "image/jpeg", StoragePath: "images/a", Slug: "a"}, true)
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}
	if err := db.AddAccessKeyItem(ctx, key.ID, id); err != nil {
		t.Fatalf("AddAccessKeyItem: %v", err)
	}

	items, err := db.ListAccessKeyItems(ctx, key.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected 1 pinned item, got %v, err %v", items, err)
	}

	if err := db.RevokeAccessKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeAccessKey: %v", err)
	}
	if got, err := db.GetAccessKeyByCode(ctx, key.Code); err != nil || got != nil {
		t.Errorf("expected key to be gone after revoke, got %+v, err %v", got, err)
	}
}

func TestListAccessKeysForOwnerOrdersNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.CreateAccessKey(ctx, 5, "first", PermissionRead, nil, nil)
	if err != nil {
		t.Fatalf("CreateAccessKey first: %v", err)
	}
	second, err := db.CreateAccessKey(ctx, 5, "second", PermissionRead, nil, nil)
	if err != nil {
		t.Fatalf("CreateAccessKey second: %v", err)
	}

	keys, err := db.ListAccessKeysForOwner(ctx, 5)
	if err != nil {
		t.Fatalf("ListAccessKeysForOwner: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].ID != second.ID || keys[1].ID != first.ID {
		t.Errorf("expected newest-first ordering, got ids %d, %d", keys[0].ID, keys[1].ID)
	}
}
