package clientstore

import (
	"strings"

	"github.com/Md-KamranQutub/chatify/internal/model"
)

// Attachment is media held in memory so a failed send can be retried.
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// Draft is what the local user typed before the server has seen it.
type Draft struct {
	ConversationID string
	ReceiverID     string
	Content        string
	Attachment     *Attachment
}

// Entry is one row of the local message sequence. The set of
// implementations is closed: Pending, Confirmed and Failed.
type Entry interface {
	// Key is the temp id for unconfirmed entries and the server id otherwise.
	Key() string
	isEntry()
}

// Pending is an optimistic entry awaiting the server.
type Pending struct {
	TempID string
	Draft  Draft
}

// Confirmed mirrors a message the server has stored.
type Confirmed struct {
	Message model.PopulatedMessage
}

// Failed is a send the server rejected or never answered. It stays in place
// until retried or discarded.
type Failed struct {
	TempID string
	Draft  Draft
	Reason string
}

func (p Pending) Key() string   { return p.TempID }
func (c Confirmed) Key() string { return c.Message.ID }
func (f Failed) Key() string    { return f.TempID }

func (Pending) isEntry()   {}
func (Confirmed) isEntry() {}
func (Failed) isEntry()    {}

const tempIDPrefix = "temp-"

// IsTempID reports whether id was minted locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

func conversationOf(e Entry) string {
	switch v := e.(type) {
	case Pending:
		return v.Draft.ConversationID
	case Confirmed:
		return v.Message.ConversationID
	case Failed:
		return v.Draft.ConversationID
	}
	return ""
}
