package models

import "time"

// Conversation is a two-party message thread, optionally tied to a property.
// Stored in the `conversations` collection; messages live in `messages`.
type Conversation struct {
	ID                string     `bson:"_id" json:"id"`
	Participants      []string   `bson:"participants" json:"participants"`
	PropertyID        string     `bson:"propertyId,omitempty" json:"propertyId,omitempty"`
	CreatedBy         string     `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	LastMessage       string     `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageTime   *time.Time `bson:"lastMessageTime,omitempty" json:"lastMessageTime,omitempty"`
	LastMessageSender string     `bson:"lastMessageSender,omitempty" json:"lastMessageSender,omitempty"`
	CreatedAt         *time.Time `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the first participant that is not userID.
func (c *Conversation) Counterpart(userID string) string {
	for _, p := range c.Participants {
		if p != "" && p != userID {
			return p
		}
	}
	return ""
}

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Message is an append-only entry of a conversation. Only Read (and the
// matching Status) ever changes after insert.
type Message struct {
	ID             string        `bson:"_id" json:"id"`
	ConversationID string        `bson:"conversationId" json:"conversationId"`
	SenderID       string        `bson:"senderId" json:"senderId"`
	Text           string        `bson:"text" json:"text"`
	Timestamp      *time.Time    `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	Status         MessageStatus `bson:"status" json:"status"`
	Read           bool          `bson:"read" json:"read"`
}
