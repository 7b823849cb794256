package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"group-chat-service/internal/models"
)

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, kind models.GroupKind, name *string, creatorID string, memberIDs []string) (models.Group, error)
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
	FindGroupByExactMemberSet(ctx context.Context, kind models.GroupKind, memberIDs []string) (models.Group, error)
	DeleteGroupCascade(ctx context.Context, groupID int64) error
	ListGroupsForUser(ctx context.Context, userID string) ([]models.GroupSummary, error)
	ListAdminGroups(ctx context.Context, userID string) ([]models.AdminGroup, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `g.id, g.name, g.created_by, g.kind, g.created_at`

// CreateGroup creates a group and one membership per member atomically. The creator is
// always a member and the only admin.
func (r *GroupRepo) CreateGroup(ctx context.Context, kind models.GroupKind, name *string, creatorID string, memberIDs []string) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (name, created_by, kind) VALUES ($1, $2, $3) RETURNING id, name, created_by, kind, created_at`, name, creatorID, kind).
		StructScan(&group); err != nil {
		return models.Group{}, err
	}

	for _, id := range lo.Uniq(append([]string{creatorID}, memberIDs...)) {
		role := models.RoleMember
		if id == creatorID {
			role = models.RoleAdmin
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)`, group.ID, id, role); err != nil {
			return models.Group{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups g WHERE g.id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// FindGroupByExactMemberSet returns the oldest group of the kind whose members are exactly memberIDs.
// Membership rows are unique per user, so mutual array containment is set equality.
func (r *GroupRepo) FindGroupByExactMemberSet(ctx context.Context, kind models.GroupKind, memberIDs []string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups g
        WHERE g.kind = $1 AND g.id IN (
            SELECT gm.group_id FROM group_members gm
            GROUP BY gm.group_id
            HAVING array_agg(gm.user_id) @> $2::text[] AND array_agg(gm.user_id) <@ $2::text[]
        )
        ORDER BY g.created_at ASC LIMIT 1`, kind, pq.Array(lo.Uniq(memberIDs)))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// DeleteGroupCascade removes the group; memberships and messages go with it via ON DELETE CASCADE.
func (r *GroupRepo) DeleteGroupCascade(ctx context.Context, groupID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// ListGroupsForUser returns the groups the user belongs to and is not banned from, with unread counts.
// Messages from muted members other than the user are not counted, matching what history shows.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID string) ([]models.GroupSummary, error) {
	query := `SELECT ` + groupColumns + `,
        (SELECT COUNT(*) FROM group_messages m
            WHERE m.group_id = g.id
            AND m.sender_id <> $1
            AND NOT ($1 = ANY(m.read_by))
            AND m.sender_id NOT IN (SELECT mm.user_id FROM group_members mm WHERE mm.group_id = g.id AND mm.muted)
        ) AS unread_count,
        COALESCE((SELECT o.user_id FROM group_members o
            WHERE g.kind = 'private' AND o.group_id = g.id AND o.user_id <> $1 LIMIT 1), '') AS peer_id
        FROM groups g
        INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id = $1 AND gm.banned = FALSE
        ORDER BY g.created_at DESC`
	groups := []models.GroupSummary{}
	err := r.db.SelectContext(ctx, &groups, query, userID)
	return groups, err
}

// ListAdminGroups returns the groups the user administers with their member counts.
func (r *GroupRepo) ListAdminGroups(ctx context.Context, userID string) ([]models.AdminGroup, error) {
	query := `SELECT ` + groupColumns + `,
        (SELECT COUNT(*) FROM group_members c WHERE c.group_id = g.id) AS member_count
        FROM groups g
        INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id = $1 AND gm.role = 'admin'
        ORDER BY g.created_at DESC`
	groups := []models.AdminGroup{}
	err := r.db.SelectContext(ctx, &groups, query, userID)
	return groups, err
}
