package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"group-chat-service/internal/models"
	"group-chat-service/internal/repositories"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, kind models.GroupKind, name *string, creatorID string, memberIDs []string) (models.Group, error) {
	args := m.Called(ctx, kind, name, creatorID, memberIDs)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) FindGroupByExactMemberSet(ctx context.Context, kind models.GroupKind, memberIDs []string) (models.Group, error) {
	args := m.Called(ctx, kind, memberIDs)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteGroupCascade(ctx context.Context, groupID int64) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID string) ([]models.GroupSummary, error) {
	args := m.Called(ctx, userID)
	var groups []models.GroupSummary
	if val := args.Get(0); val != nil {
		groups = val.([]models.GroupSummary)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) ListAdminGroups(ctx context.Context, userID string) ([]models.AdminGroup, error) {
	args := m.Called(ctx, userID)
	var groups []models.AdminGroup
	if val := args.Get(0); val != nil {
		groups = val.([]models.AdminGroup)
	}
	return groups, args.Error(1)
}

type MembershipRepositoryMock struct {
	mock.Mock
}

func (m *MembershipRepositoryMock) FindMembership(ctx context.Context, groupID int64, userID string) (models.Membership, error) {
	args := m.Called(ctx, groupID, userID)
	var member models.Membership
	if val := args.Get(0); val != nil {
		member = val.(models.Membership)
	}
	return member, args.Error(1)
}

func (m *MembershipRepositoryMock) ListMemberships(ctx context.Context, groupID int64) ([]models.Membership, error) {
	args := m.Called(ctx, groupID)
	var members []models.Membership
	if val := args.Get(0); val != nil {
		members = val.([]models.Membership)
	}
	return members, args.Error(1)
}

func (m *MembershipRepositoryMock) InsertMembership(ctx context.Context, member models.Membership) (models.Membership, error) {
	args := m.Called(ctx, member)
	var created models.Membership
	if val := args.Get(0); val != nil {
		created = val.(models.Membership)
	}
	return created, args.Error(1)
}

func (m *MembershipRepositoryMock) UpsertMembership(ctx context.Context, member models.Membership) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MembershipRepositoryMock) DeleteMembership(ctx context.Context, groupID int64, userID string) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var stored models.Message
	if val := args.Get(0); val != nil {
		stored = val.(models.Message)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, groupID int64, excludingSenders []string, page repositories.Page) ([]models.Message, error) {
	args := m.Called(ctx, groupID, excludingSenders, page)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID int64, userID string) (models.Message, bool, error) {
	args := m.Called(ctx, messageID, userID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) SearchMessages(ctx context.Context, groupID int64, query string, excludingSenders []string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, query, excludingSenders, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

var _ repositories.GroupRepository = (*GroupRepositoryMock)(nil)
var _ repositories.MembershipRepository = (*MembershipRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
