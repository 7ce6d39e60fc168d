package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"hama/estate/internal/config"
	"hama/estate/internal/db"
	"hama/estate/internal/metrics"
	"hama/estate/internal/models"
)

// PresenceStaleAfter is how long a lastSeen heartbeat keeps a user online.
const PresenceStaleAfter = 5 * time.Minute

const presenceWriteTimeout = 5 * time.Second

// IPresenceService defines the interface for online presence.
type IPresenceService interface {
	// MarkOnline and MarkOffline never fail the caller; write errors are logged.
	MarkOnline(ctx context.Context, userID string)
	MarkOffline(ctx context.Context, userID string)
	IsOnline(ctx context.Context, userID string, now time.Time) bool
	Get(ctx context.Context, userID string, now time.Time) models.Presence
	// Heartbeat keeps userID online until ctx is done, then marks it offline.
	Heartbeat(ctx context.Context, userID string)
}

// DerivePresence reports whether u counts as online at now. An explicit
// isOnline wins; otherwise lastSeen must be within PresenceStaleAfter.
func DerivePresence(u *models.User, now time.Time) bool {
	if u == nil {
		return false
	}
	if u.IsOnline {
		return true
	}
	if u.LastSeen == nil {
		return false
	}
	return now.Sub(*u.LastSeen) < PresenceStaleAfter
}

// presenceService implements IPresenceService.
type presenceService struct {
	store    db.Store
	cfg      *config.Config
	settings ISettingsService
}

// NewPresenceService creates a new PresenceService. settings may be nil.
func NewPresenceService(store db.Store, cfg *config.Config, settings ISettingsService) IPresenceService {
	return &presenceService{store: store, cfg: cfg, settings: settings}
}

func (s *presenceService) MarkOnline(ctx context.Context, userID string) {
	s.mark(ctx, userID, true)
}

func (s *presenceService) MarkOffline(ctx context.Context, userID string) {
	s.mark(ctx, userID, false)
}

func (s *presenceService) mark(ctx context.Context, userID string, online bool) {
	if userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, presenceWriteTimeout)
	defer cancel()
	err := s.store.SetDoc(ctx, usersCollection, userID, db.Fields{
		"isOnline": online,
		"lastSeen": db.ServerTimestamp,
	}, true)
	if err != nil {
		task := "presence_offline"
		if online {
			task = "presence_online"
		}
		metrics.BestEffortFailures.WithLabelValues(task).Inc()
		log.Warn().Err(err).Str("user_id", userID).Bool("online", online).Msg("presence write failed")
	}
}

func (s *presenceService) readTimeout(ctx context.Context) time.Duration {
	if s.settings != nil {
		return s.settings.GetDuration(ctx, "PRESENCE_TIMEOUT_SECONDS", s.cfg.PresenceTimeout)
	}
	return s.cfg.PresenceTimeout
}

func (s *presenceService) load(ctx context.Context, userID string) *models.User {
	if userID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout(ctx))
	defer cancel()
	var u models.User
	if err := s.store.GetByID(ctx, usersCollection, userID, &u); err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("presence read failed, reporting offline")
		return nil
	}
	return &u
}

func (s *presenceService) IsOnline(ctx context.Context, userID string, now time.Time) bool {
	return DerivePresence(s.load(ctx, userID), now)
}

func (s *presenceService) Get(ctx context.Context, userID string, now time.Time) models.Presence {
	p := models.Presence{UserID: userID}
	if u := s.load(ctx, userID); u != nil {
		p.Online = DerivePresence(u, now)
		p.LastSeen = u.LastSeen
	}
	return p
}

func (s *presenceService) Heartbeat(ctx context.Context, userID string) {
	s.MarkOnline(ctx, userID)

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.MarkOnline(ctx, userID)
		case <-ctx.Done():
			// ctx is already done, so the final write needs its own.
			s.MarkOffline(context.WithoutCancel(ctx), userID)
			return
		}
	}
}
