package models

import (
	"database/sql/driver"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PayloadKind names the single content kind a message carries.
type PayloadKind string

const (
	PayloadText  PayloadKind = "text"
	PayloadFile  PayloadKind = "file"
	PayloadMedia PayloadKind = "media"
)

// Payload is the content of a message. Exactly one of Text, FileURL or MediaURL is set,
// matching Kind.
type Payload struct {
	Kind       PayloadKind `db:"kind" json:"kind" validate:"required,oneof=text file media"`
	Text       string      `db:"text" json:"text,omitempty" validate:"max=4000"`
	FileURL    string      `db:"file_url" json:"file_url,omitempty" validate:"omitempty,url"`
	FileType   string      `db:"file_type" json:"file_type,omitempty" validate:"max=255"`
	FileName   string      `db:"file_name" json:"file_name,omitempty" validate:"max=255"`
	MediaURL   string      `db:"media_url" json:"media_url,omitempty" validate:"omitempty,url"`
	MediaQuery string      `db:"media_query" json:"media_query,omitempty" validate:"max=255"`
}

// SingleKind reports whether exactly the content field matching Kind is set.
func (p Payload) SingleKind() bool {
	hasText, hasFile, hasMedia := p.Text != "", p.FileURL != "", p.MediaURL != ""
	switch p.Kind {
	case PayloadText:
		return hasText && !hasFile && !hasMedia && p.FileType == "" && p.FileName == "" && p.MediaQuery == ""
	case PayloadFile:
		return hasFile && !hasText && !hasMedia && p.MediaQuery == ""
	case PayloadMedia:
		return hasMedia && !hasText && !hasFile && p.FileType == "" && p.FileName == ""
	}
	return false
}

// Normalize trims the content fields and infers Kind when the client left it out and
// exactly one content field is present.
func (p Payload) Normalize() Payload {
	p.Text = strings.TrimSpace(p.Text)
	p.FileURL = strings.TrimSpace(p.FileURL)
	p.MediaURL = strings.TrimSpace(p.MediaURL)
	if p.Kind != "" {
		return p
	}
	switch {
	case p.Text != "" && p.FileURL == "" && p.MediaURL == "":
		p.Kind = PayloadText
	case p.FileURL != "" && p.Text == "" && p.MediaURL == "":
		p.Kind = PayloadFile
	case p.MediaURL != "" && p.Text == "" && p.FileURL == "":
		p.Kind = PayloadMedia
	}
	return p
}

// Message represents a message persisted in a group.
type Message struct {
	ID       int64  `db:"id" json:"id"`
	GroupID  int64  `db:"group_id" json:"group_id"`
	SenderID string `db:"sender_id" json:"sender_id"`
	Payload
	ReadBy    ReadSet   `db:"read_by" json:"read_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ReadSet is the set of users that acknowledged a message.
// It is stored as a Postgres text[] and serialized as a sorted JSON array.
type ReadSet map[string]struct{}

// NewReadSet builds a set from the given user ids.
func NewReadSet(userIDs ...string) ReadSet {
	s := make(ReadSet, len(userIDs))
	for _, id := range userIDs {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether userID has read the message.
func (s ReadSet) Has(userID string) bool {
	_, ok := s[userID]
	return ok
}

// Add inserts userID and reports whether it was absent.
func (s ReadSet) Add(userID string) bool {
	if s.Has(userID) {
		return false
	}
	s[userID] = struct{}{}
	return true
}

// Slice returns the members in lexical order.
func (s ReadSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Scan implements sql.Scanner over a text[] column.
func (s *ReadSet) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*s = NewReadSet(arr...)
	return nil
}

// Value implements driver.Valuer.
func (s ReadSet) Value() (driver.Value, error) {
	return pq.StringArray(s.Slice()).Value()
}

func (s ReadSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *ReadSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewReadSet(ids...)
	return nil
}
