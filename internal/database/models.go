package database

import "time"

// MediaKind identifies which of the three media variants a row represents.
type MediaKind string

const (
	KindVideo    MediaKind = "video"
	KindImage    MediaKind = "image"
	KindDocument MediaKind = "document"
)

// Status is a MediaItem's lifecycle state. Transitions form a DAG:
// Draft→Processing→{Active|Failed}, Active↔Archived.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProcessing Status = "processing"
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusFailed     Status = "failed"
)

// validTransitions enumerates the allowed Status DAG edges.
var validTransitions = map[Status][]Status{
	StatusDraft:      {StatusProcessing},
	StatusProcessing: {StatusActive, StatusFailed},
	StatusActive:     {StatusArchived},
	StatusArchived:   {StatusActive},
	StatusFailed:     {StatusProcessing},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Visibility controls whether the Public access-control layer can grant Read.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// MediaItem is the unified record for every stored artifact, replacing the
// a single per-kind files table. Kind-specific columns are nullable in the
// schema and zero-valued here for inapplicable kinds.
type MediaItem struct {
	ID          int64
	Slug        string
	Kind        MediaKind
	Filename    string
	MimeType    string
	Size        int64
	StoragePath string
	Thumbnail   string
	Visibility  Visibility
	OwnerID     *int64
	GroupID     *int64
	Status      Status
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Video/Image
	Width       int
	Height      int
	AspectRatio string

	// Video only
	DurationSeconds float64
	Codec           string
	FPS             float64
	HLSMasterPath   string

	// Image only
	DominantColor string
	ExifJSON      string

	// Document only
	PageCount    int
	Author       string
	Language     string
	RowCount     int
	ColumnCount  int
	CSVDelimiter string

	Tags []string
}

// Tag is a label attachable to MediaItems via the media_tags junction.
type Tag struct {
	ID         int64
	Name       string
	Slug       string
	Color      string
	Icon       string
	Category   string
	UsageCount int64
	CreatedAt  time.Time
}

// Role is a GroupMembership's scope of capability within its group.
type Role string

const (
	RoleViewer      Role = "viewer"
	RoleContributor Role = "contributor"
	RoleEditor      Role = "editor"
	RoleAdmin       Role = "admin"
	RoleOwner       Role = "owner"
)

// AccessGroup clusters resources under a shared membership roster.
type AccessGroup struct {
	ID        int64
	Slug      string
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

// GroupMembership associates a user with a group at a given Role.
type GroupMembership struct {
	GroupID  int64
	UserID   int64
	Role     Role
	JoinedAt time.Time
}

// Permission is a level in the Read < Download < Edit < Delete < Admin lattice.
type Permission int

const (
	PermissionRead Permission = iota
	PermissionDownload
	PermissionEdit
	PermissionDelete
	PermissionAdmin
)

// Includes reports whether p subsumes other (p >= other in the lattice).
func (p Permission) Includes(other Permission) bool { return p >= other }

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionDownload:
		return "download"
	case PermissionEdit:
		return "edit"
	case PermissionDelete:
		return "delete"
	case PermissionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParsePermission maps a stored/requested permission string back to its level.
func ParsePermission(s string) (Permission, bool) {
	switch s {
	case "read":
		return PermissionRead, true
	case "download":
		return PermissionDownload, true
	case "edit":
		return PermissionEdit, true
	case "delete":
		return PermissionDelete, true
	case "admin":
		return PermissionAdmin, true
	default:
		return PermissionRead, false
	}
}

// RolePermission maps a GroupMembership role to the permission it grants over
// resources the group contains, per spec: Viewer→Read, Contributor→Edit over
// own contributions, Editor→Edit over any, Admin→Delete, Owner→Admin.
func RolePermission(r Role) Permission {
	switch r {
	case RoleViewer:
		return PermissionRead
	case RoleContributor, RoleEditor:
		return PermissionEdit
	case RoleAdmin:
		return PermissionDelete
	case RoleOwner:
		return PermissionAdmin
	default:
		return PermissionRead
	}
}

// AccessKey is an opaque shareable token granting Permission over either a
// pinned set of resources (AccessKeyItems) or a single bound group.
type AccessKey struct {
	ID          int64
	Code        string
	Description string
	OwnerID     int64
	Permission  Permission
	ExpiresAt   *time.Time
	BoundGroup  *int64
	CreatedAt   time.Time
}

// Expired reports whether the key is no longer usable at time t.
func (k *AccessKey) Expired(t time.Time) bool {
	return k.ExpiresAt != nil && t.After(*k.ExpiresAt)
}

// AccessKeyItem pins one media item, by its id, to an AccessKey.
type AccessKeyItem struct {
	KeyID      int64
	ResourceID int64
}

// ListFilter narrows a list() query over media_items.
type ListFilter struct {
	Kind       MediaKind
	OwnerID    *int64
	GroupID    *int64
	Visibility Visibility
	Status     Status
	TagAny     []string
	TagAll     []string
	TextQuery  string
}

// SortKey enumerates the allow-listed ORDER BY columns for list().
type SortKey string

const (
	SortCreatedAt SortKey = "created_at"
	SortUpdatedAt SortKey = "updated_at"
	SortTitle     SortKey = "title"
	SortDuration  SortKey = "duration_seconds"
)

// Pagination is an offset+limit page request.
type Pagination struct {
	Offset int
	Limit  int
}

// Sort picks an allow-listed column and direction for list().
type Sort struct {
	Key  SortKey
	Desc bool
}

// Patch is a subset-patch applied by update_media_fields. Nil fields are
// left unchanged; non-nil fields (including empty string/slice) are applied.
type Patch struct {
	Title       *string
	Description *string
	Visibility  *Visibility
	GroupID     **int64
	Status      *Status
	Tags        *[]string

	Thumbnail     *string
	Width         *int
	Height        *int
	AspectRatio   *string
	Duration      *float64
	Codec         *string
	FPS           *float64
	HLSMasterPath *string
	DominantColor *string
	ExifJSON      *string
	PageCount     *int
	Author        *string
	Language      *string
	RowCount      *int
	ColumnCount   *int
	CSVDelimiter  *string
}
