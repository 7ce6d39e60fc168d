package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"hama/estate/internal/config"
	"hama/estate/internal/db"
	"hama/estate/internal/metrics"
	"hama/estate/internal/models"
)

// IInquiryService defines the interface for agent inquiry operations.
type IInquiryService interface {
	// Aggregate computes the agent's inquiry list from the store.
	Aggregate(ctx context.Context, agentID string) ([]models.Inquiry, error)
	// ListForAgent is Aggregate with a bounded timeout and a cached fallback.
	ListForAgent(ctx context.Context, agentID string) (*models.InquiryView, error)
	// Sync makes the stored inquiry of a conversation reflect its last message.
	Sync(ctx context.Context, conversationID string) error
	CreateInquiry(ctx context.Context, propertyID, clientID, message string) (*models.Inquiry, error)
	UpdateStatus(ctx context.Context, inquiryID, agentID string, status models.InquiryStatus) (*models.Inquiry, error)
}

// InquiryCache keeps the last good inquiry view per agent.
type InquiryCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, agentID string) (*models.InquiryView, error)
	Put(ctx context.Context, view *models.InquiryView) error
}

// InquirySyncer requests an inquiry sync after a message send. It never
// reports failure to the caller.
type InquirySyncer interface {
	RequestSync(ctx context.Context, conversationID string)
}

// InquiryNotifier tells an agent about a new inquiry. It never reports
// failure to the caller.
type InquiryNotifier interface {
	NotifyNewInquiry(ctx context.Context, notice models.InquiryNotice)
}

const (
	inquiriesCollection     = "inquiries"
	conversationsCollection = "conversations"
	propertiesCollection    = "properties"
	usersCollection         = "users"
)

const cacheTimeout = time.Second

// inquiryService implements IInquiryService.
type inquiryService struct {
	store    db.Store
	cfg      *config.Config
	settings ISettingsService
	cache    InquiryCache
	notifier InquiryNotifier
	now      func() time.Time
}

// InquiryOption configures the inquiry service.
type InquiryOption func(*inquiryService)

// WithNotifier sends a notice to the agent whenever a new inquiry is stored.
func WithNotifier(n InquiryNotifier) InquiryOption {
	return func(s *inquiryService) { s.notifier = n }
}

// NewInquiryService creates a new InquiryService. settings and cache may be nil.
func NewInquiryService(store db.Store, cfg *config.Config, settings ISettingsService, cache InquiryCache, opts ...InquiryOption) IInquiryService {
	s := &inquiryService{
		store:    store,
		cfg:      cfg,
		settings: settings,
		cache:    cache,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *inquiryService) Aggregate(ctx context.Context, agentID string) ([]models.Inquiry, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}

	inquiries, fellBack, err := db.QueryOrdered(ctx, s.store, inquiriesCollection,
		db.Where("agentId", db.OpEqual, agentID).Order("createdAt", db.Desc), sortByCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query inquiries for agent %s: %w", agentID, err)
	}
	if fellBack {
		metrics.QueryFallbacks.WithLabelValues(inquiriesCollection).Inc()
		log.Debug().Str("agent_id", agentID).Msg("inquiries sorted in memory, ordered query unavailable")
	}

	var conversations []models.Conversation
	if err := s.store.QueryWhere(ctx, conversationsCollection, db.Where("participants", db.OpArrayContains, agentID), &conversations); err != nil {
		return nil, fmt.Errorf("failed to query conversations for agent %s: %w", agentID, err)
	}

	snap := Snapshot{
		Inquiries:     inquiries,
		Conversations: conversations,
		Properties:    map[string]*models.Property{},
		Users:         map[string]*models.User{},
	}

	for _, inq := range inquiries {
		if err := s.resolveProperty(ctx, snap.Properties, inq.PropertyID); err != nil {
			return nil, err
		}
		if inq.ClientID != nil {
			if err := s.resolveUser(ctx, snap.Users, *inq.ClientID); err != nil {
				return nil, err
			}
		}
	}
	for i := range conversations {
		conv := &conversations[i]
		if conv.PropertyID == "" || IsTestProperty(conv.PropertyID) {
			continue
		}
		if err := s.resolveProperty(ctx, snap.Properties, conv.PropertyID); err != nil {
			return nil, err
		}
		if snap.Properties[conv.PropertyID] == nil {
			log.Debug().Str("agent_id", agentID).Str("conversation_id", conv.ID).
				Str("property_id", conv.PropertyID).Msg("skipping conversation, property not found")
			continue
		}
		if clientID := InferClientID(agentID, conv); clientID != nil {
			if err := s.resolveUser(ctx, snap.Users, *clientID); err != nil {
				return nil, err
			}
		}
	}

	result := Reconcile(agentID, snap)
	stored := make(map[string]bool, len(inquiries))
	for i := range inquiries {
		stored[inquiries[i].ID] = true
	}
	for i := range result {
		if !stored[result[i].ID] {
			metrics.InquiriesSynthesized.Inc()
		}
	}
	return result, nil
}

// resolveProperty loads a property into props once per id. A property that
// cannot be read is left out; only cancellation of ctx is returned.
func (s *inquiryService) resolveProperty(ctx context.Context, props map[string]*models.Property, id string) error {
	if id == "" {
		return nil
	}
	if _, done := props[id]; done {
		return nil
	}
	var prop models.Property
	err := s.store.GetByID(ctx, propertiesCollection, id, &prop)
	switch {
	case err == nil:
		props[id] = &prop
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, db.ErrNotFound):
		props[id] = nil
	default:
		log.Warn().Err(err).Str("property_id", id).Msg("failed to load property")
		props[id] = nil
	}
	return nil
}

func (s *inquiryService) resolveUser(ctx context.Context, users map[string]*models.User, id string) error {
	if _, done := users[id]; done {
		return nil
	}
	var u models.User
	err := s.store.GetByID(ctx, usersCollection, id, &u)
	switch {
	case err == nil:
		users[id] = &u
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case !errors.Is(err, db.ErrNotFound):
		log.Warn().Err(err).Str("user_id", id).Msg("failed to load user")
	}
	users[id] = nil
	return nil
}

func (s *inquiryService) timeout(ctx context.Context) time.Duration {
	if s.settings != nil {
		return s.settings.GetDuration(ctx, "INQUIRY_TIMEOUT_SECONDS", s.cfg.InquiryTimeout)
	}
	return s.cfg.InquiryTimeout
}

func (s *inquiryService) ListForAgent(ctx context.Context, agentID string) (*models.InquiryView, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.timeout(ctx))
	defer cancel()

	inquiries, err := s.Aggregate(readCtx, agentID)
	if err == nil {
		view := &models.InquiryView{AgentID: agentID, Inquiries: inquiries, GeneratedAt: s.now().UTC()}
		if s.cache != nil {
			cacheCtx, cancelCache := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
			if err := s.cache.Put(cacheCtx, view); err != nil {
				log.Warn().Err(err).Str("agent_id", agentID).Msg("failed to cache inquiry view")
			}
			cancelCache()
		}
		return view, nil
	}

	timedOut := errors.Is(err, context.DeadlineExceeded)
	reason := "error"
	if timedOut {
		reason = "timeout"
	}
	log.Warn().Err(err).Str("agent_id", agentID).Str("reason", reason).Msg("inquiry view unavailable, falling back")

	if cached := s.cachedView(ctx, agentID); cached != nil {
		metrics.InquiryViewFallbacks.WithLabelValues(reason).Inc()
		cached.Stale = true
		return cached, nil
	}
	if timedOut && ctx.Err() == nil {
		metrics.InquiryViewFallbacks.WithLabelValues(reason).Inc()
		return &models.InquiryView{AgentID: agentID, Inquiries: []models.Inquiry{}, Stale: true, GeneratedAt: s.now().UTC()}, nil
	}
	return nil, err
}

func (s *inquiryService) cachedView(ctx context.Context, agentID string) *models.InquiryView {
	if s.cache == nil {
		return nil
	}
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	view, err := s.cache.Get(cacheCtx, agentID)
	if err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("failed to read cached inquiry view")
		return nil
	}
	return view
}

// conversationAgent loads a conversation, its property and the agent owning
// it. prop is nil and agentID empty for conversations that never become
// inquiries (no property, test property, or no resolvable owner).
func (s *inquiryService) conversationAgent(ctx context.Context, conversationID string) (*models.Conversation, *models.Property, string, error) {
	var conv models.Conversation
	if err := s.store.GetByID(ctx, conversationsCollection, conversationID, &conv); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, "", fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		return nil, nil, "", fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if conv.PropertyID == "" || IsTestProperty(conv.PropertyID) {
		return &conv, nil, "", nil
	}

	var prop models.Property
	if err := s.store.GetByID(ctx, propertiesCollection, conv.PropertyID, &prop); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, "", fmt.Errorf("%w: %s", ErrPropertyNotFound, conv.PropertyID)
		}
		return nil, nil, "", fmt.Errorf("failed to load property %s: %w", conv.PropertyID, err)
	}
	agentID := prop.OwnerID()
	if agentID == "" {
		log.Warn().Str("conversation_id", conversationID).Str("property_id", prop.ID).Msg("property has no agent, conversation has no inquiry")
		return &conv, nil, "", nil
	}
	return &conv, &prop, agentID, nil
}

func (s *inquiryService) Sync(ctx context.Context, conversationID string) error {
	conv, prop, agentID, err := s.conversationAgent(ctx, conversationID)
	if err != nil {
		return err
	}
	if agentID == "" {
		return nil
	}

	status := models.InquiryStatusActive
	if conv.LastMessageSender == agentID {
		status = models.InquiryStatusResponded
	}
	update := db.Fields{
		"lastMessage":       conv.LastMessage,
		"lastMessageTime":   conv.LastMessageTime,
		"lastMessageSender": conv.LastMessageSender,
		"status":            status,
		"updatedAt":         db.ServerTimestamp,
	}

	existing, err := s.findByConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.store.UpdateDoc(ctx, inquiriesCollection, existing.ID, update); err != nil {
			return fmt.Errorf("failed to update inquiry %s: %w", existing.ID, err)
		}
		return nil
	}

	update["propertyId"] = conv.PropertyID
	update["agentId"] = agentID
	update["clientId"] = InferClientID(agentID, conv)
	update["conversationId"] = conversationID
	update["source"] = models.InquirySourceMessaging
	if conv.CreatedAt != nil {
		update["createdAt"] = *conv.CreatedAt
	} else {
		update["createdAt"] = db.ServerTimestamp
	}
	id := models.InquiryIDForConversation(conversationID)
	created, err := s.store.UpsertDoc(ctx, inquiriesCollection, id, update)
	if err != nil {
		return fmt.Errorf("failed to write inquiry %s: %w", id, err)
	}
	if !created {
		// A concurrent sync stored it first and sent the notice.
		return nil
	}
	log.Info().Str("conversation_id", conversationID).Str("agent_id", agentID).Msg("inquiry created from conversation")

	var clientID string
	if c := InferClientID(agentID, conv); c != nil {
		clientID = *c
	}
	s.notify(ctx, id, agentID, clientID, prop, conv.LastMessage)
	return nil
}

// notify resolves the agent and client and hands a notice to the notifier.
// Agents without an email address are skipped.
func (s *inquiryService) notify(ctx context.Context, inquiryID, agentID, clientID string, prop *models.Property, message string) {
	if s.notifier == nil {
		return
	}
	users := map[string]*models.User{}
	if err := s.resolveUser(ctx, users, agentID); err != nil {
		return
	}
	agent := users[agentID]
	if agent == nil || agent.Email == "" {
		log.Debug().Str("agent_id", agentID).Str("inquiry_id", inquiryID).Msg("agent has no email, skipping notice")
		return
	}
	notice := models.InquiryNotice{
		InquiryID:     inquiryID,
		AgentEmail:    agent.Email,
		AgentName:     agent.Name,
		PropertyTitle: prop.Title,
		Message:       message,
	}
	if notice.PropertyTitle == "" {
		notice.PropertyTitle = placeholderPropertyTitle
	}
	if clientID != "" {
		if err := s.resolveUser(ctx, users, clientID); err == nil && users[clientID] != nil {
			notice.ClientName = users[clientID].Name
		}
	}
	s.notifier.NotifyNewInquiry(ctx, notice)
}

// findByConversation returns the stored inquiry of a conversation, preferring
// the deterministic-id document when duplicates exist. Nil when none.
func (s *inquiryService) findByConversation(ctx context.Context, conversationID string) (*models.Inquiry, error) {
	var found []models.Inquiry
	if err := s.store.QueryWhere(ctx, inquiriesCollection, db.Where("conversationId", db.OpEqual, conversationID), &found); err != nil {
		return nil, fmt.Errorf("failed to look up inquiry for conversation %s: %w", conversationID, err)
	}
	found = dedupeByConversation(found)
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *inquiryService) CreateInquiry(ctx context.Context, propertyID, clientID, message string) (*models.Inquiry, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	var prop models.Property
	if err := s.store.GetByID(ctx, propertiesCollection, propertyID, &prop); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
		}
		return nil, fmt.Errorf("failed to load property %s: %w", propertyID, err)
	}
	agentID := prop.OwnerID()
	if agentID == "" {
		return nil, fmt.Errorf("%w: %s", ErrPropertyOwnerUnknown, propertyID)
	}
	if agentID == clientID {
		return nil, ErrSelfConversation
	}

	id, err := s.store.AddDoc(ctx, inquiriesCollection, db.Fields{
		"propertyId": propertyID,
		"agentId":    agentID,
		"clientId":   &clientID,
		"status":     models.InquiryStatusNew,
		"source":     models.InquirySourceManual,
		"message":    message,
		"createdAt":  db.ServerTimestamp,
		"updatedAt":  db.ServerTimestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create inquiry: %w", err)
	}

	var inq models.Inquiry
	if err := s.store.GetByID(ctx, inquiriesCollection, id, &inq); err != nil {
		return nil, fmt.Errorf("failed to read back inquiry %s: %w", id, err)
	}
	s.notify(ctx, inq.ID, agentID, clientID, &prop, message)
	return &inq, nil
}

func (s *inquiryService) UpdateStatus(ctx context.Context, inquiryID, agentID string, status models.InquiryStatus) (*models.Inquiry, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	inq, err := s.getInquiry(ctx, inquiryID)
	if errors.Is(err, ErrInquiryNotFound) {
		// A synthesized inquiry is only stored once its conversation syncs.
		convID, ok := models.ConversationIDFromInquiryID(inquiryID)
		if !ok {
			return nil, err
		}
		// Ownership is checked before Sync so a rejected caller writes nothing.
		_, _, owner, err := s.conversationAgent(ctx, convID)
		switch {
		case errors.Is(err, ErrConversationNotFound):
			return nil, fmt.Errorf("%w: %s", ErrInquiryNotFound, inquiryID)
		case err != nil:
			return nil, err
		case owner == "":
			return nil, fmt.Errorf("%w: %s", ErrInquiryNotFound, inquiryID)
		case owner != agentID:
			return nil, ErrNotInquiryAgent
		}
		if err := s.Sync(ctx, convID); err != nil {
			return nil, err
		}
		if inq, err = s.findByConversation(ctx, convID); err != nil {
			return nil, err
		}
		if inq == nil {
			return nil, fmt.Errorf("%w: %s", ErrInquiryNotFound, inquiryID)
		}
	} else if err != nil {
		return nil, err
	}

	if inq.AgentID != agentID {
		return nil, ErrNotInquiryAgent
	}
	if err := s.store.UpdateDoc(ctx, inquiriesCollection, inq.ID, db.Fields{"status": status, "updatedAt": db.ServerTimestamp}); err != nil {
		return nil, fmt.Errorf("failed to update inquiry %s: %w", inq.ID, err)
	}
	return s.getInquiry(ctx, inq.ID)
}

func (s *inquiryService) getInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	var inq models.Inquiry
	if err := s.store.GetByID(ctx, inquiriesCollection, id, &inq); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInquiryNotFound, id)
		}
		return nil, fmt.Errorf("failed to load inquiry %s: %w", id, err)
	}
	return &inq, nil
}
