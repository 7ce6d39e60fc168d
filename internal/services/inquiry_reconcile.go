package services

import (
	"sort"
	"strings"
	"time"

	"hama/estate/internal/models"
)

// TestPropertyMarker marks placeholder properties used for QA. Conversations
// about them never become inquiries.
const TestPropertyMarker = "test-property"

const (
	placeholderClientName    = "Client"
	placeholderPropertyTitle = "Property"
)

// Snapshot is the data an agent's inquiry list is computed from.
type Snapshot struct {
	Inquiries     []models.Inquiry
	Conversations []models.Conversation
	Properties    map[string]*models.Property
	Users         map[string]*models.User
}

// IsTestProperty reports whether propertyID names a placeholder property.
func IsTestProperty(propertyID string) bool {
	return strings.Contains(propertyID, TestPropertyMarker)
}

// InferClientID returns the counterpart of agentID in conv: the first
// participant that is not the agent, then createdBy, then lastMessageSender.
// Nil when none of them identifies someone other than the agent.
func InferClientID(agentID string, conv *models.Conversation) *string {
	candidates := []string{conv.Counterpart(agentID), conv.CreatedBy, conv.LastMessageSender}
	for _, id := range candidates {
		if id != "" && id != agentID {
			id := id
			return &id
		}
	}
	return nil
}

// Reconcile merges an agent's explicit inquiries with the conversations that
// have none, and returns them newest first. It does no I/O and returns the
// same result for the same snapshot.
func Reconcile(agentID string, snap Snapshot) []models.Inquiry {
	explicit := dedupeByConversation(snap.Inquiries)
	out := make([]models.Inquiry, 0, len(explicit)+len(snap.Conversations))
	covered := make(map[string]bool, len(explicit))
	for _, inq := range explicit {
		if inq.ConversationID != "" {
			covered[inq.ConversationID] = true
		}
		out = append(out, enrich(inq, snap))
	}

	for i := range snap.Conversations {
		conv := &snap.Conversations[i]
		if conv.PropertyID == "" || IsTestProperty(conv.PropertyID) {
			continue
		}
		prop, ok := snap.Properties[conv.PropertyID]
		if !ok || prop == nil {
			continue
		}
		if covered[conv.ID] {
			continue
		}
		covered[conv.ID] = true
		out = append(out, synthesize(agentID, conv, prop, snap.Users))
	}

	SortInquiries(out)
	return out
}

func synthesize(agentID string, conv *models.Conversation, prop *models.Property, users map[string]*models.User) models.Inquiry {
	clientID := InferClientID(agentID, conv)
	return models.Inquiry{
		ID:                models.InquiryIDForConversation(conv.ID),
		PropertyID:        conv.PropertyID,
		AgentID:           agentID,
		ClientID:          clientID,
		ConversationID:    conv.ID,
		Status:            models.InquiryStatusActive,
		Source:            models.InquirySourceMessaging,
		LastMessage:       conv.LastMessage,
		LastMessageTime:   conv.LastMessageTime,
		LastMessageSender: conv.LastMessageSender,
		CreatedAt:         conv.CreatedAt,
		Client:            clientSummary(clientID, users),
		Property:          propertySummary(prop),
	}
}

// enrich fills the display summaries of a stored inquiry from the snapshot.
func enrich(inq models.Inquiry, snap Snapshot) models.Inquiry {
	if inq.Client == nil && inq.ClientID != nil {
		inq.Client = clientSummary(inq.ClientID, snap.Users)
	}
	if inq.Property == nil {
		if prop, ok := snap.Properties[inq.PropertyID]; ok && prop != nil {
			inq.Property = propertySummary(prop)
		}
	}
	return inq
}

func clientSummary(clientID *string, users map[string]*models.User) *models.ClientSummary {
	summary := &models.ClientSummary{Name: placeholderClientName}
	if clientID == nil {
		return summary
	}
	summary.ID = *clientID
	if u, ok := users[*clientID]; ok && u != nil {
		summary.Email = u.Email
		switch {
		case u.Name != "":
			summary.Name = u.Name
		case u.Email != "":
			summary.Name = u.Email
		}
	}
	return summary
}

func propertySummary(prop *models.Property) *models.PropertySummary {
	summary := prop.Summary()
	if summary.Title == "" {
		summary.Title = placeholderPropertyTitle
	}
	return summary
}

// dedupeByConversation keeps one stored inquiry per conversation. Concurrent
// writers may have left several; the deterministic-id document wins, then
// the most recently touched one.
func dedupeByConversation(inquiries []models.Inquiry) []models.Inquiry {
	best := map[string]int{}
	out := make([]models.Inquiry, 0, len(inquiries))
	for _, inq := range inquiries {
		if inq.ConversationID == "" {
			out = append(out, inq)
			continue
		}
		idx, seen := best[inq.ConversationID]
		if !seen {
			best[inq.ConversationID] = len(out)
			out = append(out, inq)
			continue
		}
		if preferInquiry(&inq, &out[idx]) {
			out[idx] = inq
		}
	}
	return out
}

func preferInquiry(a, b *models.Inquiry) bool {
	if a.KeyedByConversation() != b.KeyedByConversation() {
		return a.KeyedByConversation()
	}
	if c := compareTimes(a.EffectiveTime(), b.EffectiveTime()); c != 0 {
		return c > 0
	}
	return a.ID < b.ID
}

// SortInquiries orders inquiries by effective time, newest first, with
// undated inquiries last and ties broken by id.
func SortInquiries(inquiries []models.Inquiry) {
	sort.SliceStable(inquiries, func(i, j int) bool {
		return inquiryBefore(&inquiries[i], &inquiries[j], (*models.Inquiry).EffectiveTime)
	})
}

// sortByCreatedAt is the in-memory equivalent of ordering by createdAt desc.
func sortByCreatedAt(inquiries []models.Inquiry) {
	sort.SliceStable(inquiries, func(i, j int) bool {
		return inquiryBefore(&inquiries[i], &inquiries[j], func(inq *models.Inquiry) *time.Time { return inq.CreatedAt })
	})
}

func inquiryBefore(a, b *models.Inquiry, key func(*models.Inquiry) *time.Time) bool {
	if c := compareTimes(key(a), key(b)); c != 0 {
		return c > 0
	}
	return a.ID < b.ID
}

// compareTimes orders nil before any time.
func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}
