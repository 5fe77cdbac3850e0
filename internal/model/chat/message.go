package chat

import "time"

// Origin tells the widget which side authored a message.
type Origin string

const (
	OriginUser  Origin = "user"
	OriginAgent Origin = "agent"
)

// Message is one transcript entry. It is never edited after it is appended.
type Message struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Fragment is a single reply unit returned by the agent webhook.
type Fragment struct {
	RecipientID string `json:"recipientId,omitempty"`
	Text        string `json:"text"`
}
