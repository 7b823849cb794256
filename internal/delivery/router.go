// Package delivery decides which live sessions receive each group event and pushes to them.
package delivery

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"group-chat-service/internal/models"
	"group-chat-service/internal/observability"
	"group-chat-service/internal/presence"
)

// SessionLookup resolves a user to their current session.
type SessionLookup interface {
	Lookup(userID string) (presence.Session, bool)
}

// MembershipLister lists every membership of a group.
type MembershipLister interface {
	ListMemberships(ctx context.Context, groupID int64) ([]models.Membership, error)
}

// Report summarizes one fan-out. Targeted counts resolved sessions, Delivered and Failed
// partition them by push outcome.
type Report struct {
	Targeted  int
	Delivered int
	Failed    int
}

// Router pushes group events to the live sessions of the users they concern.
type Router struct {
	sessions    SessionLookup
	memberships MembershipLister
	pushTimeout time.Duration
	logger      *slog.Logger
}

// NewRouter constructs a Router. Each push is abandoned after pushTimeout.
func NewRouter(sessions SessionLookup, memberships MembershipLister, pushTimeout time.Duration, logger *slog.Logger) *Router {
	return &Router{
		sessions:    sessions,
		memberships: memberships,
		pushTimeout: pushTimeout,
		logger:      logger,
	}
}

// DeliverMessage fans a persisted message out to the group. Banned members never receive it.
// A banned or departed sender reaches nobody and a muted sender only sees their own echo.
func (r *Router) DeliverMessage(ctx context.Context, msg models.Message) Report {
	members, err := r.memberships.ListMemberships(ctx, msg.GroupID)
	if err != nil {
		r.logger.Error("list memberships for delivery failed",
			slog.Int64("group_id", msg.GroupID), slog.Int64("message_id", msg.ID), slog.Any("error", err))
		return Report{}
	}

	sender, found := lo.Find(members, func(m models.Membership) bool { return m.UserID == msg.SenderID })
	if !found || sender.Banned {
		return Report{}
	}

	if sender.Muted {
		event := models.GroupEvent{Type: models.EventMessageReceived, GroupID: msg.GroupID, Message: &msg, SelfOnly: true}
		return r.push(ctx, event, r.resolve([]string{msg.SenderID}))
	}

	recipients := lo.FilterMap(members, func(m models.Membership, _ int) (string, bool) {
		return m.UserID, !m.Banned
	})
	event := models.GroupEvent{Type: models.EventMessageReceived, GroupID: msg.GroupID, Message: &msg}
	return r.push(ctx, event, r.resolve(recipients))
}

// BroadcastReadReceipt pushes the message's read set to every member's session regardless of
// moderation state. The payload is never included.
func (r *Router) BroadcastReadReceipt(ctx context.Context, msg models.Message) Report {
	members, err := r.memberships.ListMemberships(ctx, msg.GroupID)
	if err != nil {
		r.logger.Error("list memberships for read receipt failed",
			slog.Int64("group_id", msg.GroupID), slog.Int64("message_id", msg.ID), slog.Any("error", err))
		return Report{}
	}

	userIDs := lo.Map(members, func(m models.Membership, _ int) string { return m.UserID })
	event := models.GroupEvent{
		Type:    models.EventReadStatusUpdated,
		GroupID: msg.GroupID,
		Receipt: &models.ReadReceipt{MessageID: msg.ID, GroupID: msg.GroupID, ReadBy: msg.ReadBy},
	}
	return r.push(ctx, event, r.resolve(userIDs))
}

// NotifyModeration tells the affected user about a change to their membership. It reports
// whether the push reached a session.
func (r *Router) NotifyModeration(ctx context.Context, membership models.Membership, action models.ModerationAction) bool {
	event := models.GroupEvent{
		Type:       models.EventModerationStatusChanged,
		GroupID:    membership.GroupID,
		UserID:     membership.UserID,
		Action:     action,
		Membership: &membership,
	}
	return r.push(ctx, event, r.resolve([]string{membership.UserID})).Delivered == 1
}

// NotifyRemoved tells each user they no longer belong to the group.
func (r *Router) NotifyRemoved(ctx context.Context, groupID int64, userIDs ...string) Report {
	sessions := r.resolve(userIDs)
	report := Report{}
	for _, s := range sessions {
		event := models.GroupEvent{Type: models.EventRemovedFromGroup, GroupID: groupID, UserID: s.UserID()}
		part := r.push(ctx, event, []presence.Session{s})
		report.Targeted += part.Targeted
		report.Delivered += part.Delivered
		report.Failed += part.Failed
	}
	return report
}

// resolve maps users to their current sessions, skipping offline users and repeated sessions.
func (r *Router) resolve(userIDs []string) []presence.Session {
	sessions := lo.FilterMap(lo.Uniq(userIDs), func(id string, _ int) (presence.Session, bool) {
		return r.sessions.Lookup(id)
	})
	return lo.UniqBy(sessions, func(s presence.Session) string { return s.ID() })
}

// push sends event to every session concurrently and waits for all of them. Each push gets
// its own deadline and outlives cancellation of the triggering request.
func (r *Router) push(ctx context.Context, event models.GroupEvent, sessions []presence.Session) Report {
	if len(sessions) == 0 {
		return Report{}
	}

	base := context.WithoutCancel(ctx)
	var delivered, failed atomic.Int64
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s presence.Session) {
			defer wg.Done()
			pushCtx, cancel := context.WithTimeout(base, r.pushTimeout)
			defer cancel()

			if err := s.Send(pushCtx, event); err != nil {
				failed.Add(1)
				observability.IncDelivery(string(event.Type), "failed")
				r.logger.Warn("push failed",
					slog.String("event", string(event.Type)),
					slog.Int64("group_id", event.GroupID),
					slog.String("user_id", s.UserID()),
					slog.String("session_id", s.ID()),
					slog.Any("error", err))
				return
			}
			delivered.Add(1)
			observability.IncDelivery(string(event.Type), "delivered")
		}(s)
	}
	wg.Wait()

	return Report{
		Targeted:  len(sessions),
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
	}
}
