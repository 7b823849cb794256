// Package chat implements group lifecycle, messaging and read receipts on top of the
// repositories and the delivery router.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"group-chat-service/internal/apperr"
	"group-chat-service/internal/delivery"
	"group-chat-service/internal/keylock"
	"group-chat-service/internal/models"
	"group-chat-service/internal/repositories"
	"group-chat-service/internal/telemetry"
)

const searchLimit = 50

var tracer = otel.Tracer("group-chat-service/chat")

// Deliverer pushes persisted changes to live sessions.
type Deliverer interface {
	DeliverMessage(ctx context.Context, msg models.Message) delivery.Report
	BroadcastReadReceipt(ctx context.Context, msg models.Message) delivery.Report
	NotifyRemoved(ctx context.Context, groupID int64, userIDs ...string) delivery.Report
}

// Auditor records group lifecycle changes.
type Auditor interface {
	Emit(ctx context.Context, rec telemetry.AuditRecord)
}

// CreateGroupInput describes a group to create. Members may or may not include the creator.
type CreateGroupInput struct {
	Members   []string         `validate:"required,min=1,dive,required"`
	CreatorID string           `validate:"required"`
	Kind      models.GroupKind `validate:"omitempty,oneof=group private"`
	Name      *string          `validate:"omitempty,max=100"`
}

// Service runs group lifecycle and messaging operations for authenticated users.
type Service struct {
	groups      repositories.GroupRepository
	memberships repositories.MembershipRepository
	messages    repositories.MessageRepository
	deliverer   Deliverer
	audit       Auditor
	validate    *validator.Validate
	setLocks    *keylock.Locker
	readLocks   *keylock.Locker
	memberLocks *keylock.Locker
	pageSize    int
	logger      *slog.Logger
}

// NewService constructs a Service. memberLocks is shared with the moderation coordinator so a
// message is never stored and fanned out while its sender's membership is changing.
func NewService(
	groups repositories.GroupRepository,
	memberships repositories.MembershipRepository,
	messages repositories.MessageRepository,
	deliverer Deliverer,
	audit Auditor,
	memberLocks *keylock.Locker,
	pageSize int,
	logger *slog.Logger,
) *Service {
	return &Service{
		groups:      groups,
		memberships: memberships,
		messages:    messages,
		deliverer:   deliverer,
		audit:       audit,
		validate:    validator.New(),
		setLocks:    keylock.New(),
		readLocks:   keylock.New(),
		memberLocks: memberLocks,
		pageSize:    pageSize,
		logger:      logger,
	}
}

// CreateGroup returns the existing group of the same kind with exactly the requested member set,
// or creates one with the creator as admin. created reports which happened.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (group models.Group, created bool, err error) {
	ctx, span := tracer.Start(ctx, "chat.CreateGroup")
	defer span.End()

	in.CreatorID = strings.TrimSpace(in.CreatorID)
	in.Members = lo.Map(in.Members, func(id string, _ int) string { return strings.TrimSpace(id) })
	if err := s.validate.Struct(in); err != nil {
		return models.Group{}, false, fmt.Errorf("create group: %v: %w", err, apperr.ErrInvalidArgument)
	}
	if in.Kind == "" {
		in.Kind = models.GroupKindGroup
	}

	memberIDs := lo.Uniq(append([]string{in.CreatorID}, in.Members...))
	sort.Strings(memberIDs)
	if in.Kind == models.GroupKindPrivate {
		if len(memberIDs) != 2 {
			return models.Group{}, false, fmt.Errorf("private conversation needs exactly two distinct members: %w", apperr.ErrInvalidArgument)
		}
		in.Name = nil
	}
	span.SetAttributes(attribute.String("group.kind", string(in.Kind)), attribute.Int("group.members", len(memberIDs)))

	unlock := s.setLocks.Lock(string(in.Kind) + "|" + strings.Join(memberIDs, ","))
	defer unlock()

	existing, err := s.groups.FindGroupByExactMemberSet(ctx, in.Kind, memberIDs)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repositories.ErrGroupNotFound) {
		return models.Group{}, false, apperr.FromStore(err)
	}

	group, err = s.groups.CreateGroup(ctx, in.Kind, in.Name, in.CreatorID, memberIDs)
	if err != nil {
		return models.Group{}, false, apperr.FromStore(err)
	}

	s.audit.Emit(ctx, telemetry.AuditRecord{Text: "group created", UserID: in.CreatorID, GroupID: group.ID, Action: "createGroup"})
	s.logger.Info("group created", slog.Int64("group_id", group.ID), slog.String("kind", string(group.Kind)), slog.Int("members", len(memberIDs)))
	return group, true, nil
}

// DeleteGroup tears the group down with its memberships and messages. Only the creator may do it.
func (s *Service) DeleteGroup(ctx context.Context, groupID int64, requesterID string) error {
	ctx, span := tracer.Start(ctx, "chat.DeleteGroup")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return apperr.FromStore(err)
	}
	if group.CreatedBy != requesterID {
		return fmt.Errorf("only the creator can delete the group: %w", apperr.ErrPermissionDenied)
	}

	members, err := s.memberships.ListMemberships(ctx, groupID)
	if err != nil {
		return apperr.FromStore(err)
	}
	if err := s.groups.DeleteGroupCascade(ctx, groupID); err != nil {
		return apperr.FromStore(err)
	}

	former := lo.Map(members, func(m models.Membership, _ int) string { return m.UserID })
	s.deliverer.NotifyRemoved(ctx, groupID, former...)
	s.audit.Emit(ctx, telemetry.AuditRecord{Text: "group deleted", UserID: requesterID, GroupID: groupID, Action: "deleteGroup"})
	return nil
}

// GetGroup returns the group with its members. Only unbanned members may read it.
func (s *Service) GetGroup(ctx context.Context, groupID int64, userID string) (models.GroupDetail, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.GroupDetail{}, apperr.FromStore(err)
	}
	if _, err := s.activeMember(ctx, groupID, userID); err != nil {
		return models.GroupDetail{}, err
	}
	members, err := s.memberships.ListMemberships(ctx, groupID)
	if err != nil {
		return models.GroupDetail{}, apperr.FromStore(err)
	}
	return models.GroupDetail{Group: group, Members: members, MemberCount: len(members)}, nil
}

// ListGroups returns the user's groups with unread counts.
func (s *Service) ListGroups(ctx context.Context, userID string) ([]models.GroupSummary, error) {
	groups, err := s.groups.ListGroupsForUser(ctx, userID)
	return groups, apperr.FromStore(err)
}

// ListAdminGroups returns the groups the user administers.
func (s *Service) ListAdminGroups(ctx context.Context, userID string) ([]models.AdminGroup, error) {
	groups, err := s.groups.ListAdminGroups(ctx, userID)
	return groups, apperr.FromStore(err)
}

// SendMessage persists a message and fans it out. The stored message is returned even when
// no push succeeded.
func (s *Service) SendMessage(ctx context.Context, groupID int64, senderID string, payload models.Payload) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.SendMessage")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	payload = payload.Normalize()
	if err := s.validate.Struct(payload); err != nil {
		return models.Message{}, fmt.Errorf("payload: %v: %w", err, apperr.ErrInvalidArgument)
	}
	if !payload.SingleKind() {
		return models.Message{}, fmt.Errorf("payload must carry exactly one of text, file or media: %w", apperr.ErrInvalidArgument)
	}

	unlock := s.memberLocks.Lock(keylock.MemberKey(groupID, senderID))
	defer unlock()

	if _, err := s.activeMember(ctx, groupID, senderID); err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.AppendMessage(ctx, models.Message{
		GroupID:  groupID,
		SenderID: senderID,
		Payload:  payload,
		ReadBy:   models.NewReadSet(senderID),
	})
	if err != nil {
		return models.Message{}, apperr.FromStore(err)
	}

	report := s.deliverer.DeliverMessage(ctx, msg)
	span.SetAttributes(attribute.Int("delivery.targeted", report.Targeted), attribute.Int("delivery.failed", report.Failed))
	return msg, nil
}

// AckRead marks the message read by userID. Only the first ack by a user is broadcast.
// Messages hidden from userID by a mute are reported as not found.
func (s *Service) AckRead(ctx context.Context, messageID int64, userID string) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.AckRead")
	defer span.End()
	span.SetAttributes(attribute.Int64("message.id", messageID))

	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, apperr.FromStore(err)
	}
	hidden, err := s.hiddenSenders(ctx, msg.GroupID, userID)
	if err != nil {
		return models.Message{}, err
	}
	if lo.Contains(hidden, msg.SenderID) {
		return models.Message{}, fmt.Errorf("message %d: %w", messageID, apperr.ErrNotFound)
	}

	unlock := s.readLocks.Lock(strconv.FormatInt(messageID, 10))
	defer unlock()

	msg, updated, err := s.messages.MarkRead(ctx, messageID, userID)
	if err != nil {
		return models.Message{}, apperr.FromStore(err)
	}
	if updated {
		s.deliverer.BroadcastReadReceipt(ctx, msg)
	}
	return msg, nil
}

// History returns a page of the group's messages oldest first. Messages from muted members
// are hidden from everyone but their author.
func (s *Service) History(ctx context.Context, groupID int64, userID string, page repositories.Page) ([]models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.History")
	defer span.End()

	if page.Offset < 0 || page.Limit < 0 {
		return nil, fmt.Errorf("negative offset or limit: %w", apperr.ErrInvalidArgument)
	}
	if page.Limit == 0 || page.Limit > s.pageSize {
		page.Limit = s.pageSize
	}

	hidden, err := s.hiddenSenders(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListMessages(ctx, groupID, hidden, page)
	return msgs, apperr.FromStore(err)
}

// Search finds messages whose text, file name or media query contains query, newest first.
func (s *Service) Search(ctx context.Context, groupID int64, userID, query string) ([]models.Message, error) {
	ctx, span := tracer.Start(ctx, "chat.Search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query: %w", apperr.ErrInvalidArgument)
	}

	hidden, err := s.hiddenSenders(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.SearchMessages(ctx, groupID, query, hidden, searchLimit)
	return msgs, apperr.FromStore(err)
}

// hiddenSenders checks that userID may read the group and returns the muted members whose
// messages userID must not see.
func (s *Service) hiddenSenders(ctx context.Context, groupID int64, userID string) ([]string, error) {
	members, err := s.memberships.ListMemberships(ctx, groupID)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	self, ok := lo.Find(members, func(m models.Membership) bool { return m.UserID == userID })
	if !ok || self.Banned {
		return nil, fmt.Errorf("not an active member: %w", apperr.ErrForbidden)
	}
	return lo.FilterMap(members, func(m models.Membership, _ int) (string, bool) {
		return m.UserID, m.Muted && m.UserID != userID
	}), nil
}

// activeMember returns the user's membership, failing with ErrForbidden when there is none or
// the user is banned.
func (s *Service) activeMember(ctx context.Context, groupID int64, userID string) (models.Membership, error) {
	m, err := s.memberships.FindMembership(ctx, groupID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Membership{}, fmt.Errorf("not a member: %w", apperr.ErrForbidden)
	}
	if err != nil {
		return models.Membership{}, apperr.FromStore(err)
	}
	if m.Banned {
		return models.Membership{}, fmt.Errorf("banned from group: %w", apperr.ErrForbidden)
	}
	return m, nil
}
