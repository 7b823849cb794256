package moderation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"group-chat-service/internal/apperr"
	"group-chat-service/internal/delivery"
	"group-chat-service/internal/keylock"
	"group-chat-service/internal/mocks"
	"group-chat-service/internal/models"
	"group-chat-service/internal/repositories"
	"group-chat-service/internal/telemetry"
)

type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) NotifyModeration(ctx context.Context, membership models.Membership, action models.ModerationAction) bool {
	args := m.Called(ctx, membership, action)
	return args.Bool(0)
}

func (m *notifierMock) NotifyRemoved(ctx context.Context, groupID int64, userIDs ...string) delivery.Report {
	args := m.Called(ctx, groupID, userIDs)
	return args.Get(0).(delivery.Report)
}

type recordingAuditor struct {
	mu      sync.Mutex
	records []telemetry.AuditRecord
}

func (a *recordingAuditor) Emit(_ context.Context, rec telemetry.AuditRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

const groupID = int64(3)

func admin(userID string) models.Membership {
	return models.Membership{GroupID: groupID, UserID: userID, Role: models.RoleAdmin}
}

func plain(userID string) models.Membership {
	return models.Membership{GroupID: groupID, UserID: userID, Role: models.RoleMember}
}

func newCoordinator(groups *mocks.GroupRepositoryMock, memberships repositories.MembershipRepository, notifier Notifier, auditor *recordingAuditor) *Coordinator {
	return NewCoordinator(groups, memberships, notifier, auditor, keylock.New(), logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestApplyActionMutePersistsThenNotifiesOnce(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	notifier := new(notifierMock)
	auditor := &recordingAuditor{}

	memberships.On("FindMembership", mock.Anything, groupID, "admin").Return(admin("admin"), nil)
	memberships.On("FindMembership", mock.Anything, groupID, "bob").Return(plain("bob"), nil)
	mutedBob := plain("bob")
	mutedBob.Muted = true
	memberships.On("UpsertMembership", mock.Anything, mutedBob).Return(nil).Once()
	notifier.On("NotifyModeration", mock.Anything, mutedBob, models.ActionMute).Return(true).Once()

	got, err := newCoordinator(new(mocks.GroupRepositoryMock), memberships, notifier, auditor).
		ApplyAction(context.Background(), groupID, "admin", "bob", models.ActionMute)

	require.NoError(t, err)
	assert.True(t, got.Muted)
	memberships.AssertExpectations(t)
	notifier.AssertExpectations(t)
	require.Len(t, auditor.records, 1)
	assert.Equal(t, "mute", auditor.records[0].Action)
	assert.Equal(t, "bob", auditor.records[0].Target)
	assert.Equal(t, "admin", auditor.records[0].UserID)
}

func TestApplyActionSetAdminPromotes(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	notifier := new(notifierMock)

	memberships.On("FindMembership", mock.Anything, groupID, "admin").Return(admin("admin"), nil)
	memberships.On("FindMembership", mock.Anything, groupID, "bob").Return(plain("bob"), nil)
	memberships.On("UpsertMembership", mock.Anything, admin("bob")).Return(nil)
	notifier.On("NotifyModeration", mock.Anything, admin("bob"), models.ActionSetAdmin).Return(false)

	got, err := newCoordinator(new(mocks.GroupRepositoryMock), memberships, notifier, &recordingAuditor{}).
		ApplyAction(context.Background(), groupID, "admin", "bob", models.ActionSetAdmin)

	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
}

func TestApplyActionRejections(t *testing.T) {
	bannedAdmin := admin("admin")
	bannedAdmin.Banned = true

	cases := []struct {
		name   string
		action models.ModerationAction
		setup  func(m *mocks.MembershipRepositoryMock)
		want   error
	}{
		{
			name:   "unknown action",
			action: "kick",
			setup:  func(*mocks.MembershipRepositoryMock) {},
			want:   apperr.ErrInvalidArgument,
		},
		{
			name:   "actor not a member",
			action: models.ActionBan,
			setup: func(m *mocks.MembershipRepositoryMock) {
				m.On("FindMembership", mock.Anything, groupID, "admin").Return(nil, repositories.ErrMembershipNotFound)
			},
			want: apperr.ErrPermissionDenied,
		},
		{
			name:   "actor not admin",
			action: models.ActionBan,
			setup: func(m *mocks.MembershipRepositoryMock) {
				m.On("FindMembership", mock.Anything, groupID, "admin").Return(plain("admin"), nil)
			},
			want: apperr.ErrPermissionDenied,
		},
		{
			name:   "banned admin",
			action: models.ActionBan,
			setup: func(m *mocks.MembershipRepositoryMock) {
				m.On("FindMembership", mock.Anything, groupID, "admin").Return(bannedAdmin, nil)
			},
			want: apperr.ErrPermissionDenied,
		},
		{
			name:   "target missing",
			action: models.ActionBan,
			setup: func(m *mocks.MembershipRepositoryMock) {
				m.On("FindMembership", mock.Anything, groupID, "admin").Return(admin("admin"), nil)
				m.On("FindMembership", mock.Anything, groupID, "bob").Return(nil, repositories.ErrMembershipNotFound)
			},
			want: apperr.ErrNotFound,
		},
		{
			name:   "store down",
			action: models.ActionBan,
			setup: func(m *mocks.MembershipRepositoryMock) {
				m.On("FindMembership", mock.Anything, groupID, "admin").Return(nil, errors.New("dial tcp: refused"))
			},
			want: apperr.ErrUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			memberships := new(mocks.MembershipRepositoryMock)
			notifier := new(notifierMock)
			tc.setup(memberships)

			_, err := newCoordinator(new(mocks.GroupRepositoryMock), memberships, notifier, &recordingAuditor{}).
				ApplyAction(context.Background(), groupID, "admin", "bob", tc.action)

			require.ErrorIs(t, err, tc.want)
			memberships.AssertNotCalled(t, "UpsertMembership", mock.Anything, mock.Anything)
			notifier.AssertNotCalled(t, "NotifyModeration", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestApplyActionRedundantStillNotifies(t *testing.T) {
	memberships := new(mocks.MembershipRepositoryMock)
	notifier := new(notifierMock)
	alreadyMuted := plain("bob")
	alreadyMuted.Muted = true

	memberships.On("FindMembership", mock.Anything, groupID, "admin").Return(admin("admin"), nil)
	memberships.On("FindMembership", mock.Anything, groupID, "bob").Return(alreadyMuted, nil)
	memberships.On("UpsertMembership", mock.Anything, alreadyMuted).Return(nil)
	notifier.On("NotifyModeration", mock.Anything, alreadyMuted, models.ActionMute).Return(true).Once()

	got, err := newCoordinator(new(mocks.GroupRepositoryMock), memberships, notifier, &recordingAuditor{}).
		ApplyAction(context.Background(), groupID, "admin", "bob", models.ActionMute)

	require.NoError(t, err)
	assert.Equal(t, alreadyMuted, got)
	notifier.AssertExpectations(t)
}

// memoryMemberships detects overlapping read-modify-write cycles on one membership.
type memoryMemberships struct {
	mocks.MembershipRepositoryMock
	mu       sync.Mutex
	rows     map[string]models.Membership
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (m *memoryMemberships) FindMembership(_ context.Context, _ int64, userID string) (models.Membership, error) {
	if userID == "bob" && m.inFlight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[userID]
	if !ok {
		return models.Membership{}, repositories.ErrMembershipNotFound
	}
	return row, nil
}

func (m *memoryMemberships) UpsertMembership(_ context.Context, row models.Membership) error {
	m.mu.Lock()
	m.rows[row.UserID] = row
	m.mu.Unlock()
	return nil
}

type countingNotifier struct {
	store *memoryMemberships
	calls atomic.Int32
}

func (n *countingNotifier) NotifyModeration(context.Context, models.Membership, models.ModerationAction) bool {
	n.calls.Add(1)
	n.store.inFlight.Add(-1)
	return true
}

func (n *countingNotifier) NotifyRemoved(context.Context, int64, ...string) delivery.Report {
	return delivery.Report{}
}

func TestApplyActionSerializesPerTarget(t *testing.T) {
	store := &memoryMemberships{rows: map[string]models.Membership{"admin": admin("admin"), "bob": plain("bob")}}
	notifier := &countingNotifier{store: store}
	coordinator := newCoordinator(new(mocks.GroupRepositoryMock), store, notifier, &recordingAuditor{})

	actions := []models.ModerationAction{models.ActionMute, models.ActionUnmute, models.ActionBan, models.ActionUnban}
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(action models.ModerationAction) {
			defer wg.Done()
			_, err := coordinator.ApplyAction(context.Background(), groupID, "admin", "bob", action)
			assert.NoError(t, err)
		}(actions[i%len(actions)])
	}
	wg.Wait()

	assert.False(t, store.overlap.Load())
	assert.Equal(t, int32(40), notifier.calls.Load())
}

func TestAddMember(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	memberships := new(mocks.MembershipRepositoryMock)
	auditor := &recordingAuditor{}

	groups.On("GetGroup", mock.Anything, groupID).Return(models.Group{ID: groupID, Kind: models.GroupKindGroup}, nil)
	memberships.On("FindMembership", mock.Anything, groupID, "admin").Return(admin("admin"), nil)
	memberships.On("InsertMembership", mock.Anything, plain("carol")).Return(plain("carol"), nil).Once()
	memberships.On("InsertMembership", mock.Anything, plain("dave")).Return(nil, repositories.ErrMembershipExists).Once()

	coordinator := newCoordinator(groups, memberships, new(notifierMock), auditor)

	created, err := coordinator.AddMember(context.Background(), groupID, "admin", "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", created.UserID)
	require.Len(t, auditor.records, 1)

	_, err = coordinator.AddMember(context.Background(), groupID, "admin", "dave")
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestAddMemberRejectsPrivateGroup(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("GetGroup", mock.Anything, groupID).Return(models.Group{ID: groupID, Kind: models.GroupKindPrivate}, nil)

	_, err := newCoordinator(groups, new(mocks.MembershipRepositoryMock), new(notifierMock), &recordingAuditor{}).
		AddMember(context.Background(), groupID, "admin", "carol")

	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestRemoveMemberNotifiesRemovedUser(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	memberships := new(mocks.MembershipRepositoryMock)
	notifier := new(notifierMock)

	groups.On("GetGroup", mock.Anything, groupID).Return(models.Group{ID: groupID, Kind: models.GroupKindGroup}, nil)
	memberships.On("FindMembership", mock.Anything, groupID, "admin").Return(admin("admin"), nil)
	memberships.On("DeleteMembership", mock.Anything, groupID, "bob").Return(nil).Once()
	notifier.On("NotifyRemoved", mock.Anything, groupID, []string{"bob"}).Return(delivery.Report{Targeted: 1, Delivered: 1}).Once()

	err := newCoordinator(groups, memberships, notifier, &recordingAuditor{}).
		RemoveMember(context.Background(), groupID, "admin", "bob")

	require.NoError(t, err)
	memberships.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestRemoveMemberMissing(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	memberships := new(mocks.MembershipRepositoryMock)
	notifier := new(notifierMock)

	groups.On("GetGroup", mock.Anything, groupID).Return(models.Group{ID: groupID, Kind: models.GroupKindGroup}, nil)
	memberships.On("FindMembership", mock.Anything, groupID, "admin").Return(admin("admin"), nil)
	memberships.On("DeleteMembership", mock.Anything, groupID, "ghost").Return(repositories.ErrMembershipNotFound)

	err := newCoordinator(groups, memberships, notifier, &recordingAuditor{}).
		RemoveMember(context.Background(), groupID, "admin", "ghost")

	require.ErrorIs(t, err, apperr.ErrNotFound)
	notifier.AssertNotCalled(t, "NotifyRemoved", mock.Anything, mock.Anything, mock.Anything)
}
