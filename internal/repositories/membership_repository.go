package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"group-chat-service/internal/models"
)

// MembershipRepository abstracts the (group, user) membership table.
type MembershipRepository interface {
	FindMembership(ctx context.Context, groupID int64, userID string) (models.Membership, error)
	ListMemberships(ctx context.Context, groupID int64) ([]models.Membership, error)
	InsertMembership(ctx context.Context, m models.Membership) (models.Membership, error)
	UpsertMembership(ctx context.Context, m models.Membership) error
	DeleteMembership(ctx context.Context, groupID int64, userID string) error
}

// MembershipRepo is a sqlx implementation of MembershipRepository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs a MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

const membershipColumns = `group_id, user_id, role, banned, muted, joined_at`

// FindMembership fetches the membership of a user in a group.
func (r *MembershipRepo) FindMembership(ctx context.Context, groupID int64, userID string) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `SELECT `+membershipColumns+` FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrMembershipNotFound
	}
	return m, err
}

// ListMemberships returns every membership of the group in join order.
func (r *MembershipRepo) ListMemberships(ctx context.Context, groupID int64) ([]models.Membership, error) {
	members := []models.Membership{}
	err := r.db.SelectContext(ctx, &members, `SELECT `+membershipColumns+` FROM group_members WHERE group_id=$1 ORDER BY joined_at ASC, user_id ASC`, groupID)
	return members, err
}

// InsertMembership adds a new member and fails with ErrMembershipExists on a duplicate.
func (r *MembershipRepo) InsertMembership(ctx context.Context, m models.Membership) (models.Membership, error) {
	var created models.Membership
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_members (group_id, user_id, role, banned, muted) VALUES ($1, $2, $3, $4, $5)
        RETURNING `+membershipColumns, m.GroupID, m.UserID, m.Role, m.Banned, m.Muted).StructScan(&created)
	if isUniqueViolation(err) {
		return models.Membership{}, ErrMembershipExists
	}
	return created, err
}

// UpsertMembership writes role and moderation flags, creating the row when missing.
func (r *MembershipRepo) UpsertMembership(ctx context.Context, m models.Membership) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, role, banned, muted) VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (group_id, user_id) DO UPDATE SET role = EXCLUDED.role, banned = EXCLUDED.banned, muted = EXCLUDED.muted`,
		m.GroupID, m.UserID, m.Role, m.Banned, m.Muted)
	return err
}

// DeleteMembership removes a member from a group.
func (r *MembershipRepo) DeleteMembership(ctx context.Context, groupID int64, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMembershipNotFound
	}
	return nil
}
