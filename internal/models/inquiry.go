package models

import (
	"strings"
	"time"
)

// InquiryStatus is the lifecycle state of an inquiry.
type InquiryStatus string

const (
	InquiryStatusNew       InquiryStatus = "new"
	InquiryStatusActive    InquiryStatus = "active"
	InquiryStatusResponded InquiryStatus = "responded"
	InquiryStatusClosed    InquiryStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s InquiryStatus) Valid() bool {
	switch s {
	case InquiryStatusNew, InquiryStatusActive, InquiryStatusResponded, InquiryStatusClosed:
		return true
	}
	return false
}

// InquirySource records how an inquiry came to exist.
type InquirySource string

const (
	InquirySourceMessaging InquirySource = "messaging"
	InquirySourceManual    InquirySource = "manual"
)

// SyntheticInquiryPrefix prefixes the id of inquiries derived from conversations.
const SyntheticInquiryPrefix = "conv-"

// InquiryIDForConversation returns the deterministic inquiry id for a conversation.
func InquiryIDForConversation(conversationID string) string {
	return SyntheticInquiryPrefix + conversationID
}

// ConversationIDFromInquiryID reverses InquiryIDForConversation.
func ConversationIDFromInquiryID(id string) (string, bool) {
	if !strings.HasPrefix(id, SyntheticInquiryPrefix) || len(id) == len(SyntheticInquiryPrefix) {
		return "", false
	}
	return strings.TrimPrefix(id, SyntheticInquiryPrefix), true
}

// ClientSummary is the display context of the client behind an inquiry.
type ClientSummary struct {
	ID    string `bson:"id,omitempty" json:"id,omitempty"`
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`
}

// PropertySummary is the display context of the property an inquiry is about.
type PropertySummary struct {
	ID       string  `bson:"id" json:"id"`
	Title    string  `bson:"title" json:"title"`
	Price    float64 `bson:"price,omitempty" json:"price,omitempty"`
	Location string  `bson:"location,omitempty" json:"location,omitempty"`
}

// Inquiry represents a client's interest in a property, tracked per agent.
// Stored in the `inquiries` collection.
type Inquiry struct {
	ID                string           `bson:"_id" json:"id"`
	PropertyID        string           `bson:"propertyId" json:"propertyId"`
	AgentID           string           `bson:"agentId" json:"agentId"`
	ClientID          *string          `bson:"clientId" json:"clientId"` // nil when no counterpart could be inferred
	ConversationID    string           `bson:"conversationId,omitempty" json:"conversationId,omitempty"`
	Status            InquiryStatus    `bson:"status" json:"status"`
	Source            InquirySource    `bson:"source,omitempty" json:"source,omitempty"`
	Message           string           `bson:"message,omitempty" json:"message,omitempty"`
	LastMessage       string           `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageTime   *time.Time       `bson:"lastMessageTime,omitempty" json:"lastMessageTime,omitempty"`
	LastMessageSender string           `bson:"lastMessageSender,omitempty" json:"lastMessageSender,omitempty"`
	CreatedAt         *time.Time       `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt         *time.Time       `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
	Client            *ClientSummary   `bson:"client,omitempty" json:"client,omitempty"`
	Property          *PropertySummary `bson:"property,omitempty" json:"property,omitempty"`
}

// EffectiveTime is the timestamp inquiries are ordered by:
// updatedAt, then lastMessageTime, then createdAt. Nil when none is set.
func (i *Inquiry) EffectiveTime() *time.Time {
	switch {
	case i.UpdatedAt != nil:
		return i.UpdatedAt
	case i.LastMessageTime != nil:
		return i.LastMessageTime
	default:
		return i.CreatedAt
	}
}

// KeyedByConversation reports whether the inquiry uses the deterministic id
// of its conversation. Synthesized inquiries and those written by the
// message-send repair always do; older records may not.
func (i *Inquiry) KeyedByConversation() bool {
	return i.ConversationID != "" && i.ID == InquiryIDForConversation(i.ConversationID)
}
