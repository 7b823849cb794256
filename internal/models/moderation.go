package models

// ModerationAction is an admin operation applied to one membership.
type ModerationAction string

const (
	ActionBan         ModerationAction = "ban"
	ActionUnban       ModerationAction = "unban"
	ActionMute        ModerationAction = "mute"
	ActionUnmute      ModerationAction = "unmute"
	ActionSetAdmin    ModerationAction = "setAdmin"
	ActionRemoveAdmin ModerationAction = "removeAdmin"
)

// Valid reports whether a is one of the known moderation actions.
func (a ModerationAction) Valid() bool {
	switch a {
	case ActionBan, ActionUnban, ActionMute, ActionUnmute, ActionSetAdmin, ActionRemoveAdmin:
		return true
	}
	return false
}

// Apply sets the flag the action controls. Applying an action twice leaves the same state.
func (a ModerationAction) Apply(m *Membership) {
	switch a {
	case ActionBan:
		m.Banned = true
	case ActionUnban:
		m.Banned = false
	case ActionMute:
		m.Muted = true
	case ActionUnmute:
		m.Muted = false
	case ActionSetAdmin:
		m.Role = RoleAdmin
	case ActionRemoveAdmin:
		m.Role = RoleMember
	}
}
