// Package access implements the four-layer access-control engine: Owner >
// GroupMembership > AccessKey > Public. CheckAccess is a pure function of
// the resource's ownership/group/visibility columns and the caller's
// AccessContext — it never mutates the resource and never returns an error
// for a denied decision, matching an RBAC hierarchy middleware's
// shape (compare role levels, decide, log) but expressed as a library call
// instead of HTTP middleware, since this module has no router of its own.
package access

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"media-viewer/internal/audit"
	"media-viewer/internal/database"
	"media-viewer/internal/logging"
	"media-viewer/internal/metrics"
)

// Layer identifies which of the four resolution layers decided a check.
type Layer string

const (
	LayerOwner Layer = "Owner"
	LayerGroup Layer = "GroupMembership"
	LayerKey   Layer = "AccessKey"
	LayerPublic Layer = "Public"
	LayerNone  Layer = "" // set only on a denied Decision
)

// AccessContext is the requester's presented identity: an authenticated
// user id, a shared access-key code, or both absent (anonymous, no code).
type AccessContext struct {
	UserID        *int64
	AccessKeyCode string

	// Now pins the evaluation clock for deterministic tests. Zero means
	// evaluate against time.Now().
	Now time.Time
}

func (ac AccessContext) clock() time.Time {
	if ac.Now.IsZero() {
		return time.Now()
	}
	return ac.Now
}

func (ac AccessContext) actorID() string {
	if ac.UserID != nil {
		return fmt.Sprintf("user-%d", *ac.UserID)
	}
	if ac.AccessKeyCode != "" {
		return "key-" + ac.AccessKeyCode
	}
	return "anonymous"
}

// Resource is the minimal projection of a media_items row the engine needs.
// Callers build one from a loaded database.MediaItem via ResourceFromItem.
type Resource struct {
	ID         int64
	OwnerID    *int64
	GroupID    *int64
	Visibility database.Visibility
}

// ResourceFromItem projects the access-relevant columns out of a full row.
func ResourceFromItem(item *database.MediaItem) Resource {
	return Resource{ID: item.ID, OwnerID: item.OwnerID, GroupID: item.GroupID, Visibility: item.Visibility}
}

// Decision is the typed result of one access check: whether access was
// granted, which layer decided, the permission granted (meaningful only
// when Granted), and a human-readable reason. A denied Decision's Reason is
// a composite of every layer's miss, joined with "; ".
type Decision struct {
	Granted             bool
	Layer               Layer
	PermissionRequested database.Permission
	PermissionGranted   database.Permission
	Reason              string
	Context             AccessContext
	ResourceID          int64
}

// Engine resolves access decisions against the database and records every
// decision — granted or denied — to the audit ring and the durable
// access_audit_log mirror.
type Engine struct {
	db   *database.Database
	ring *audit.Ring
}

// New constructs an Engine.
func New(db *database.Database, ring *audit.Ring) *Engine {
	return &Engine{db: db, ring: ring}
}

// CheckAccess resolves one (resource, context, requested permission) triple.
// It is equivalent to calling BatchCheckAccess with a single resource, and
// exists as the ergonomic single-resource entry point.
func (e *Engine) CheckAccess(ctx context.Context, resource Resource, ac AccessContext, requested database.Permission) Decision {
	return e.BatchCheckAccess(ctx, []Resource{resource}, ac, requested)[0]
}

// BatchCheckAccess resolves each resource independently against the same
// AccessContext and requested permission, pre-loading group memberships and
// the presented key's item set in at most three queries (memberships, key
// lookup, key items) regardless of how
// many resources are checked — avoiding the N+1 a naive per-resource
// CheckAccess loop would otherwise issue.
func (e *Engine) BatchCheckAccess(ctx context.Context, resources []Resource, ac AccessContext, requested database.Permission) []Decision {
	start := time.Now()
	defer func() { metrics.AccessDecisionDuration.Observe(time.Since(start).Seconds()) }()

	now := ac.clock()

	var groupIDs []int64
	seen := make(map[int64]bool)
	for _, r := range resources {
		if r.GroupID != nil && !seen[*r.GroupID] {
			seen[*r.GroupID] = true
			groupIDs = append(groupIDs, *r.GroupID)
		}
	}

	var memberships map[int64]database.GroupMembership
	if ac.UserID != nil && len(groupIDs) > 0 {
		m, err := e.db.ListMembershipsForUserInGroups(ctx, *ac.UserID, groupIDs)
		if err != nil {
			logging.Warn("access: failed to pre-load group memberships: %v", err)
		} else {
			memberships = m
		}
	}

	kl := e.loadKey(ctx, ac, now)

	decisions := make([]Decision, len(resources))
	for i, r := range resources {
		d := e.resolve(r, ac, requested, now, memberships, kl)
		e.record(ctx, d)
		decisions[i] = d
	}
	return decisions
}

// keyLookup is the access key's resolved state, shared across every
// resource in a batch since a single AccessContext presents at most one code.
type keyLookup struct {
	present bool
	key     *database.AccessKey
	invalid bool // code was presented but did not resolve to a live key
	expired bool
	items   map[int64]bool // resource ids pinned to the key; nil when bound to a group instead
}

func (e *Engine) loadKey(ctx context.Context, ac AccessContext, now time.Time) keyLookup {
	if ac.AccessKeyCode == "" {
		return keyLookup{}
	}
	kl := keyLookup{present: true}

	key, err := e.db.GetAccessKeyByCode(ctx, ac.AccessKeyCode)
	if err != nil {
		logging.Warn("access: failed to look up access key: %v", err)
		kl.invalid = true
		return kl
	}
	if key == nil {
		kl.invalid = true
		return kl
	}
	if key.Expired(now) {
		kl.expired = true
		return kl
	}
	kl.key = key

	if key.BoundGroup == nil {
		items, err := e.db.ListAccessKeyItems(ctx, key.ID)
		if err != nil {
			logging.Warn("access: failed to load access key items: %v", err)
			kl.invalid = true
			return kl
		}
		set := make(map[int64]bool, len(items))
		for _, id := range items {
			set[id] = true
		}
		kl.items = set
	}
	return kl
}

// resolve runs the four-layer decision order for one resource using
// pre-loaded membership and key state.
func (e *Engine) resolve(r Resource, ac AccessContext, requested database.Permission, now time.Time, memberships map[int64]database.GroupMembership, kl keyLookup) Decision {
	base := Decision{PermissionRequested: requested, Context: ac, ResourceID: r.ID}

	var misses []string

	// 1. Owner
	switch {
	case ac.UserID == nil:
		misses = append(misses, "owner: no authenticated user")
	case r.OwnerID == nil:
		misses = append(misses, "owner: resource has no owner")
	case *r.OwnerID == *ac.UserID:
		base.Granted = true
		base.Layer = LayerOwner
		base.PermissionGranted = database.PermissionAdmin
		base.Reason = "resource owner"
		return base
	default:
		misses = append(misses, "owner: user mismatch")
	}

	// 2. Group membership
	switch {
	case r.GroupID == nil:
		misses = append(misses, "group: resource not in a group")
	case ac.UserID == nil:
		misses = append(misses, "group: no authenticated user")
	default:
		m, ok := memberships[*r.GroupID]
		if !ok {
			misses = append(misses, "group: not a member")
		} else {
			granted := database.RolePermission(m.Role)
			if m.Role == database.RoleContributor {
				// A contributor edits only its own contributions, and those
				// already resolved at the Owner layer; others' are read-only.
				granted = database.PermissionRead
			}
			if granted.Includes(requested) {
				base.Granted = true
				base.Layer = LayerGroup
				base.PermissionGranted = granted
				base.Reason = fmt.Sprintf("group role: %s", m.Role)
				return base
			}
			misses = append(misses, fmt.Sprintf("group: %s role insufficient", m.Role))
		}
	}

	// 3. Access key
	switch {
	case !kl.present:
		misses = append(misses, "key: not presented")
	case kl.invalid:
		misses = append(misses, "key: invalid code")
	case kl.expired:
		misses = append(misses, "key: expired")
	default:
		matches := (kl.key.BoundGroup != nil && r.GroupID != nil && *kl.key.BoundGroup == *r.GroupID) ||
			(kl.items != nil && kl.items[r.ID])
		switch {
		case !matches:
			misses = append(misses, "key not valid for this resource: resource not in key items")
		case !kl.key.Permission.Includes(requested):
			misses = append(misses, "key: insufficient permission")
		default:
			base.Granted = true
			base.Layer = LayerKey
			base.PermissionGranted = kl.key.Permission
			base.Reason = fmt.Sprintf("access key: %s", kl.key.Description)
			return base
		}
	}

	// 4. Public
	switch {
	case r.Visibility != database.VisibilityPublic:
		misses = append(misses, "public: private resource")
	case requested > database.PermissionRead:
		misses = append(misses, "public: requires permission beyond read")
	default:
		base.Granted = true
		base.Layer = LayerPublic
		base.PermissionGranted = database.PermissionRead
		base.Reason = "public resource"
		return base
	}

	base.Reason = strings.Join(misses, "; ")
	return base
}

// record appends the decision to the in-memory audit ring (authoritative
// for hot reads, including the failed_attempts_in_window rate-limit hook)
// and best-effort mirrors it to the durable access_audit_log table. A
// failure writing the durable mirror is logged, not propagated: the engine
// never returns an error for a decision, granted or denied.
func (e *Engine) record(ctx context.Context, d Decision) {
	detail := map[string]string{
		"granted":   strconv.FormatBool(d.Granted),
		"layer":     string(d.Layer),
		"requested": d.PermissionRequested.String(),
		"reason":    d.Reason,
	}
	if d.Granted {
		detail["granted_permission"] = d.PermissionGranted.String()
	}

	resourceID := strconv.FormatInt(d.ResourceID, 10)
	actorID := d.Context.actorID()

	e.ring.Append(audit.Entry{
		Kind:       audit.KindAccessDecision,
		ResourceID: resourceID,
		ActorID:    actorID,
		Timestamp:  time.Now(),
		Detail:     detail,
	})

	metrics.AccessDecisionsTotal.WithLabelValues(metricLayer(d.Layer), strconv.FormatBool(d.Granted)).Inc()

	if err := e.db.InsertAuditLog(ctx, string(audit.KindAccessDecision), resourceID, actorID, detail); err != nil {
		logging.Warn("access: failed to write durable audit mirror for resource %s: %v", resourceID, err)
	}
}

// FailedAttemptsInWindow reports how many denied decisions a given actor
// string (see AccessContext.actorID) accumulated within the trailing
// window ending now. It is a thin pass-through to the audit ring; gating
// policy (e.g. locking out an actor after N denials) lives with the caller.
func (e *Engine) FailedAttemptsInWindow(actorID string, window time.Duration, now time.Time) int {
	return e.ring.FailedAttemptsInWindow(actorID, window, now)
}

func metricLayer(l Layer) string {
	switch l {
	case LayerOwner:
		return "owner"
	case LayerGroup:
		return "group"
	case LayerKey:
		return "access_key"
	case LayerPublic:
		return "public"
	default:
		return "denied"
	}
}
