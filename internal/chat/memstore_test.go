package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"group-chat-service/internal/models"
	"group-chat-service/internal/repositories"
)

// memStore is an in-memory stand-in for the Postgres repositories.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	now      time.Time
	groups   map[int64]models.Group
	members  map[int64]map[string]models.Membership
	messages []models.Message
	creates  int
}

func newMemStore() *memStore {
	return &memStore{
		now:     time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		groups:  map[int64]models.Group{},
		members: map[int64]map[string]models.Membership{},
	}
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	s.nextID++
	return s.now
}

func (s *memStore) CreateGroup(_ context.Context, kind models.GroupKind, name *string, creatorID string, memberIDs []string) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	at := s.tick()
	g := models.Group{ID: s.nextID, Name: name, CreatedBy: creatorID, Kind: kind, CreatedAt: at}
	s.groups[g.ID] = g
	s.members[g.ID] = map[string]models.Membership{}
	for _, id := range lo.Uniq(append([]string{creatorID}, memberIDs...)) {
		role := models.RoleMember
		if id == creatorID {
			role = models.RoleAdmin
		}
		s.members[g.ID][id] = models.Membership{GroupID: g.ID, UserID: id, Role: role, JoinedAt: at}
	}
	return g, nil
}

func (s *memStore) GetGroup(_ context.Context, groupID int64) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return models.Group{}, repositories.ErrGroupNotFound
	}
	return g, nil
}

func (s *memStore) FindGroupByExactMemberSet(_ context.Context, kind models.GroupKind, memberIDs []string) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := append([]string(nil), lo.Uniq(memberIDs)...)
	sort.Strings(want)
	for id, g := range s.groups {
		if g.Kind != kind {
			continue
		}
		have := lo.Keys(s.members[id])
		sort.Strings(have)
		if strings.Join(have, ",") == strings.Join(want, ",") {
			return g, nil
		}
	}
	return models.Group{}, repositories.ErrGroupNotFound
}

func (s *memStore) DeleteGroupCascade(_ context.Context, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return repositories.ErrGroupNotFound
	}
	delete(s.groups, groupID)
	delete(s.members, groupID)
	s.messages = lo.Reject(s.messages, func(m models.Message, _ int) bool { return m.GroupID == groupID })
	return nil
}

func (s *memStore) ListGroupsForUser(context.Context, string) ([]models.GroupSummary, error) {
	return nil, nil
}

func (s *memStore) ListAdminGroups(context.Context, string) ([]models.AdminGroup, error) {
	return nil, nil
}

func (s *memStore) FindMembership(_ context.Context, groupID int64, userID string) (models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[groupID][userID]
	if !ok {
		return models.Membership{}, repositories.ErrMembershipNotFound
	}
	return m, nil
}

func (s *memStore) ListMemberships(_ context.Context, groupID int64) ([]models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := lo.Values(s.members[groupID])
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memStore) InsertMembership(_ context.Context, m models.Membership) (models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.GroupID][m.UserID]; ok {
		return models.Membership{}, repositories.ErrMembershipExists
	}
	s.members[m.GroupID][m.UserID] = m
	return m, nil
}

func (s *memStore) UpsertMembership(_ context.Context, m models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.GroupID][m.UserID] = m
	return nil
}

func (s *memStore) DeleteMembership(_ context.Context, groupID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[groupID][userID]; !ok {
		return repositories.ErrMembershipNotFound
	}
	delete(s.members[groupID], userID)
	return nil
}

func (s *memStore) AppendMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.CreatedAt = s.tick()
	msg.ID = s.nextID
	msg.ReadBy = models.NewReadSet(msg.ReadBy.Slice()...)
	s.messages = append(s.messages, msg)
	return cloneMessage(msg), nil
}

func (s *memStore) GetMessage(_ context.Context, messageID int64) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID {
			return cloneMessage(m), nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

func (s *memStore) ListMessages(_ context.Context, groupID int64, excludingSenders []string, page repositories.Page) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := lo.FilterMap(s.messages, func(m models.Message, _ int) (models.Message, bool) {
		return cloneMessage(m), m.GroupID == groupID && !lo.Contains(excludingSenders, m.SenderID)
	})
	if page.Offset >= len(out) {
		return []models.Message{}, nil
	}
	out = out[page.Offset:]
	if len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (s *memStore) MarkRead(_ context.Context, messageID int64, userID string) (models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			added := s.messages[i].ReadBy.Add(userID)
			return cloneMessage(s.messages[i]), added, nil
		}
	}
	return models.Message{}, false, repositories.ErrMessageNotFound
}

func (s *memStore) SearchMessages(_ context.Context, groupID int64, query string, excludingSenders []string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	out := []models.Message{}
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		hit := strings.Contains(strings.ToLower(m.Text), q) ||
			strings.Contains(strings.ToLower(m.FileName), q) ||
			strings.Contains(strings.ToLower(m.MediaQuery), q)
		if hit && m.GroupID == groupID && !lo.Contains(excludingSenders, m.SenderID) {
			out = append(out, cloneMessage(m))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneMessage(m models.Message) models.Message {
	m.ReadBy = models.NewReadSet(m.ReadBy.Slice()...)
	return m
}
