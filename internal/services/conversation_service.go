package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"hama/estate/internal/db"
	"hama/estate/internal/metrics"
	"hama/estate/internal/models"
)

// IConversationService defines the interface for messaging between clients and agents.
type IConversationService interface {
	StartConversation(ctx context.Context, clientID, propertyID, text string) (*models.Conversation, *models.Message, error)
	SendMessage(ctx context.Context, conversationID, senderID, text string) (*models.Message, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID, userID string, limit int64) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int, error)
}

const messagesCollection = "messages"

// DefaultMessagePage is the number of messages returned when no limit is given.
const DefaultMessagePage = 50

// conversationService implements IConversationService.
type conversationService struct {
	store  db.Store
	syncer InquirySyncer
}

// NewConversationService creates a new ConversationService. syncer may be nil.
func NewConversationService(store db.Store, syncer InquirySyncer) IConversationService {
	return &conversationService{store: store, syncer: syncer}
}

func (s *conversationService) StartConversation(ctx context.Context, clientID, propertyID, text string) (*models.Conversation, *models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, ErrEmptyMessage
	}
	var prop models.Property
	if err := s.store.GetByID(ctx, propertiesCollection, propertyID, &prop); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
		}
		return nil, nil, fmt.Errorf("failed to load property %s: %w", propertyID, err)
	}
	agentID := prop.OwnerID()
	if agentID == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrPropertyOwnerUnknown, propertyID)
	}
	if agentID == clientID {
		return nil, nil, ErrSelfConversation
	}

	conv, err := s.findConversation(ctx, clientID, agentID, propertyID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		id, err := s.store.AddDoc(ctx, conversationsCollection, db.Fields{
			"participants": []string{clientID, agentID},
			"propertyId":   propertyID,
			"createdBy":    clientID,
			"createdAt":    db.ServerTimestamp,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		log.Info().Str("conversation_id", id).Str("property_id", propertyID).Msg("conversation started")
		conv = &models.Conversation{ID: id}
	}

	msg, err := s.SendMessage(ctx, conv.ID, clientID, text)
	if err != nil {
		return nil, nil, err
	}
	conv, err = s.loadConversation(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

// findConversation returns the existing thread between client and agent about
// the property, if any.
func (s *conversationService) findConversation(ctx context.Context, clientID, agentID, propertyID string) (*models.Conversation, error) {
	var convs []models.Conversation
	if err := s.store.QueryWhere(ctx, conversationsCollection, db.Where("participants", db.OpArrayContains, clientID), &convs); err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	for i := range convs {
		if convs[i].PropertyID == propertyID && convs[i].HasParticipant(agentID) {
			return &convs[i], nil
		}
	}
	return nil, nil
}

func (s *conversationService) loadConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.store.GetByID(ctx, conversationsCollection, conversationID, &conv); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	return &conv, nil
}

func (s *conversationService) GetConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// SendMessage appends a message and updates the conversation. The inquiry
// sync it triggers is best-effort and cannot fail the send.
func (s *conversationService) SendMessage(ctx context.Context, conversationID, senderID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.GetConversation(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	id, err := s.store.AddDoc(ctx, messagesCollection, db.Fields{
		"conversationId": conversationID,
		"senderId":       senderID,
		"text":           text,
		"timestamp":      db.ServerTimestamp,
		"status":         models.MessageStatusSent,
		"read":           false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	var msg models.Message
	if err := s.store.GetByID(ctx, messagesCollection, id, &msg); err != nil {
		return nil, fmt.Errorf("failed to read back message %s: %w", id, err)
	}

	err = s.store.UpdateDoc(ctx, conversationsCollection, conversationID, db.Fields{
		"lastMessage":       text,
		"lastMessageTime":   msg.Timestamp,
		"lastMessageSender": senderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation %s: %w", conversationID, err)
	}

	if s.syncer != nil {
		s.syncer.RequestSync(ctx, conversationID)
	}
	return &msg, nil
}

func (s *conversationService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	convs, fellBack, err := db.QueryOrdered(ctx, s.store, conversationsCollection,
		db.Where("participants", db.OpArrayContains, userID).Order("lastMessageTime", db.Desc), sortConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for %s: %w", userID, err)
	}
	if fellBack {
		metrics.QueryFallbacks.WithLabelValues(conversationsCollection).Inc()
	}
	return convs, nil
}

func sortConversations(convs []models.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if c := compareTimes(convs[i].LastMessageTime, convs[j].LastMessageTime); c != 0 {
			return c > 0
		}
		return convs[i].ID > convs[j].ID
	})
}

// ListMessages returns the latest limit messages in chronological order.
func (s *conversationService) ListMessages(ctx context.Context, conversationID, userID string, limit int64) ([]models.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessagePage
	}
	msgs, fellBack, err := db.QueryOrdered(ctx, s.store, messagesCollection,
		db.Where("conversationId", db.OpEqual, conversationID).Order("timestamp", db.Desc).Take(limit), sortMessagesNewestFirst)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of %s: %w", conversationID, err)
	}
	if fellBack {
		metrics.QueryFallbacks.WithLabelValues(messagesCollection).Inc()
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func sortMessagesNewestFirst(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if c := compareTimes(msgs[i].Timestamp, msgs[j].Timestamp); c != 0 {
			return c > 0
		}
		return msgs[i].ID > msgs[j].ID
	})
}

// MarkRead flags the other party's unread messages as read and returns how
// many changed.
func (s *conversationService) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	var msgs []models.Message
	if err := s.store.QueryWhere(ctx, messagesCollection, db.Where("conversationId", db.OpEqual, conversationID), &msgs); err != nil {
		return 0, fmt.Errorf("failed to load messages of %s: %w", conversationID, err)
	}
	marked := 0
	for _, m := range msgs {
		if m.SenderID == userID || m.Read {
			continue
		}
		if err := s.store.UpdateDoc(ctx, messagesCollection, m.ID, db.Fields{"read": true, "status": models.MessageStatusRead}); err != nil {
			return marked, fmt.Errorf("failed to mark message %s read: %w", m.ID, err)
		}
		marked++
	}
	return marked, nil
}
