// Package moderation applies admin actions to memberships and tells the affected user.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"group-chat-service/internal/apperr"
	"group-chat-service/internal/delivery"
	"group-chat-service/internal/keylock"
	"group-chat-service/internal/models"
	"group-chat-service/internal/observability"
	"group-chat-service/internal/repositories"
	"group-chat-service/internal/telemetry"
)

var tracer = otel.Tracer("group-chat-service/moderation")

// Notifier delivers moderation outcomes to live sessions.
type Notifier interface {
	NotifyModeration(ctx context.Context, membership models.Membership, action models.ModerationAction) bool
	NotifyRemoved(ctx context.Context, groupID int64, userIDs ...string) delivery.Report
}

// Auditor records successful administrative changes.
type Auditor interface {
	Emit(ctx context.Context, rec telemetry.AuditRecord)
}

// Coordinator applies membership changes made by group admins.
type Coordinator struct {
	groups      repositories.GroupRepository
	memberships repositories.MembershipRepository
	notifier    Notifier
	audit       Auditor
	locks       *keylock.Locker
	logger      *slog.Logger
}

// NewCoordinator constructs a Coordinator. memberLocks must be the Locker that message senders
// take with keylock.MemberKey.
func NewCoordinator(
	groups repositories.GroupRepository,
	memberships repositories.MembershipRepository,
	notifier Notifier,
	audit Auditor,
	memberLocks *keylock.Locker,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		groups:      groups,
		memberships: memberships,
		notifier:    notifier,
		audit:       audit,
		locks:       memberLocks,
		logger:      logger,
	}
}

// ApplyAction changes the target's role or moderation flags. The change is persisted before the
// target is notified, and actions on the same (group, target) never interleave. Repeating an
// action leaves the membership unchanged but still persists and notifies.
func (c *Coordinator) ApplyAction(ctx context.Context, groupID int64, actorID, targetID string, action models.ModerationAction) (models.Membership, error) {
	ctx, span := tracer.Start(ctx, "moderation.ApplyAction")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("group.id", groupID),
		attribute.String("moderation.action", string(action)),
	)

	if !action.Valid() {
		return models.Membership{}, fmt.Errorf("unknown moderation action %q: %w", action, apperr.ErrInvalidArgument)
	}
	if strings.TrimSpace(targetID) == "" {
		return models.Membership{}, fmt.Errorf("target user id required: %w", apperr.ErrInvalidArgument)
	}
	if err := c.requireAdmin(ctx, groupID, actorID); err != nil {
		return models.Membership{}, err
	}

	unlock := c.locks.Lock(keylock.MemberKey(groupID, targetID))
	defer unlock()

	target, err := c.memberships.FindMembership(ctx, groupID, targetID)
	if err != nil {
		return models.Membership{}, apperr.FromStore(err)
	}

	action.Apply(&target)
	if err := c.memberships.UpsertMembership(ctx, target); err != nil {
		return models.Membership{}, apperr.FromStore(err)
	}

	c.notifier.NotifyModeration(ctx, target, action)
	observability.IncModerationAction(string(action))
	c.audit.Emit(ctx, telemetry.AuditRecord{
		Text:    "moderation action applied",
		UserID:  actorID,
		GroupID: groupID,
		Action:  string(action),
		Target:  targetID,
	})
	c.logger.Info("moderation action applied",
		slog.Int64("group_id", groupID),
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
		slog.String("action", string(action)))

	return target, nil
}

// AddMember adds userID to a multi-party group as a plain member.
func (c *Coordinator) AddMember(ctx context.Context, groupID int64, actorID, userID string) (models.Membership, error) {
	ctx, span := tracer.Start(ctx, "moderation.AddMember")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return models.Membership{}, fmt.Errorf("user id required: %w", apperr.ErrInvalidArgument)
	}
	if err := c.requireMultiParty(ctx, groupID); err != nil {
		return models.Membership{}, err
	}
	if err := c.requireAdmin(ctx, groupID, actorID); err != nil {
		return models.Membership{}, err
	}

	unlock := c.locks.Lock(keylock.MemberKey(groupID, userID))
	defer unlock()

	created, err := c.memberships.InsertMembership(ctx, models.Membership{GroupID: groupID, UserID: userID, Role: models.RoleMember})
	if err != nil {
		return models.Membership{}, apperr.FromStore(err)
	}

	c.audit.Emit(ctx, telemetry.AuditRecord{
		Text:    "member added",
		UserID:  actorID,
		GroupID: groupID,
		Action:  "addMember",
		Target:  userID,
	})
	return created, nil
}

// RemoveMember deletes userID's membership and tells them they were removed.
func (c *Coordinator) RemoveMember(ctx context.Context, groupID int64, actorID, userID string) error {
	ctx, span := tracer.Start(ctx, "moderation.RemoveMember")
	defer span.End()

	if err := c.requireMultiParty(ctx, groupID); err != nil {
		return err
	}
	if err := c.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}

	unlock := c.locks.Lock(keylock.MemberKey(groupID, userID))
	defer unlock()

	if err := c.memberships.DeleteMembership(ctx, groupID, userID); err != nil {
		return apperr.FromStore(err)
	}

	c.notifier.NotifyRemoved(ctx, groupID, userID)
	c.audit.Emit(ctx, telemetry.AuditRecord{
		Text:    "member removed",
		UserID:  actorID,
		GroupID: groupID,
		Action:  "removeMember",
		Target:  userID,
	})
	return nil
}

// requireAdmin fails with ErrPermissionDenied unless actorID is an unbanned admin of the group.
func (c *Coordinator) requireAdmin(ctx context.Context, groupID int64, actorID string) error {
	actor, err := c.memberships.FindMembership(ctx, groupID, actorID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("actor is not a member: %w", apperr.ErrPermissionDenied)
	}
	if err != nil {
		return apperr.FromStore(err)
	}
	if !actor.IsAdmin() || actor.Banned {
		return fmt.Errorf("actor is not an admin: %w", apperr.ErrPermissionDenied)
	}
	return nil
}

func (c *Coordinator) requireMultiParty(ctx context.Context, groupID int64) error {
	group, err := c.groups.GetGroup(ctx, groupID)
	if err != nil {
		return apperr.FromStore(err)
	}
	if group.Kind == models.GroupKindPrivate {
		return fmt.Errorf("private conversations have fixed members: %w", apperr.ErrInvalidArgument)
	}
	return nil
}
