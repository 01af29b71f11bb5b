package tracking

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/PackTrace/internal/broker/messages"
	"github.com/BearBump/PackTrace/internal/cache"
	"github.com/BearBump/PackTrace/internal/carriers"
	"github.com/BearBump/PackTrace/internal/integrations/carrier"
	"github.com/BearBump/PackTrace/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrEmptyTrackingNumber = errors.New("tracking number is required")
	ErrUnknownCarrier      = errors.New("unknown carrier for this tracking number format")
	ErrNoHistory           = errors.New("no tracking history for this number")
	ErrRateLimited         = errors.New("carrier lookup rate limit exceeded")
)

// NotFoundAtCarrierError — доменный not-found от перевозчика. Это не сбой
// транспорта: граница отвечает 404 с сообщением перевозчика.
type NotFoundAtCarrierError struct {
	Carrier models.Carrier
	Message string
}

func (e *NotFoundAtCarrierError) Error() string { return e.Message }

type Repository interface {
	AppendHistory(ctx context.Context, e models.HistoryEntry) error
	LatestHistory(ctx context.Context, trackingNumber string) (*models.HistoryEntry, error)
	ListHistory(ctx context.Context, trackingNumber string) ([]*models.HistoryEntry, error)
	UpsertSavedTracking(ctx context.Context, st models.SavedTracking) error
	ListSavedTrackings(ctx context.Context, userID string) ([]*models.SavedTracking, error)
}

type Producer interface {
	Publish(ctx context.Context, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Service struct {
	repo   Repository
	source carrier.Client

	cache    cache.BytesCache
	cacheTTL time.Duration

	producer Producer

	rl                 RateLimiter
	carrierLimitPerMin int64

	newID func() string
}

func New(repo Repository, source carrier.Client) *Service {
	return &Service{
		repo:   repo,
		source: source,
		newID:  uuid.NewString,
	}
}

// WithCache включает best-effort кэш последнего unified-представления.
func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

func (s *Service) WithProducer(p Producer) *Service {
	s.producer = p
	return s
}

func (s *Service) WithRateLimiter(rl RateLimiter, perMinute int64) *Service {
	s.rl = rl
	s.carrierLimitPerMin = perMinute
	return s
}

type TrackInput struct {
	TrackingNumber string
	Alias          string
	// UserID is the already-authenticated caller identity; empty means
	// anonymous, which is a normal mode, not an error.
	UserID string
}

// Track runs the lookup pipeline: classify, fetch, normalize, append to the
// history log, reconcile the saved-tracking association. The pipeline is
// fail-fast: if the history append fails, no association is written.
func (s *Service) Track(ctx context.Context, in TrackInput) (models.UnifiedTrackingInfo, error) {
	trackingNumber := strings.TrimSpace(in.TrackingNumber)
	if trackingNumber == "" {
		return models.UnifiedTrackingInfo{}, ErrEmptyTrackingNumber
	}

	carrierTag := carriers.Detect(trackingNumber)
	if carrierTag == models.CarrierUnknown {
		// Unknown short-circuits: the data source must never see it.
		return models.UnifiedTrackingInfo{}, ErrUnknownCarrier
	}

	if s.rl != nil && s.carrierLimitPerMin > 0 {
		ok, _, err := s.rl.Allow(ctx, carrierRateKey(carrierTag), s.carrierLimitPerMin, time.Minute)
		if err != nil {
			return models.UnifiedTrackingInfo{}, errors.Wrap(err, "carrier rate limit")
		}
		if !ok {
			return models.UnifiedTrackingInfo{}, ErrRateLimited
		}
	}

	info, err := s.source.GetTracking(ctx, trackingNumber, carrierTag)
	if err != nil {
		return models.UnifiedTrackingInfo{}, errors.Wrapf(err, "fetch tracking from %s", carrierTag)
	}
	normalize(&info)

	if info.Error != nil {
		// Not-found lookups are returned but deliberately not persisted;
		// only successful lookups reach the history log.
		return info, &NotFoundAtCarrierError{Carrier: carrierTag, Message: *info.Error}
	}

	if err := s.repo.AppendHistory(ctx, historyEntryFrom(info, in.UserID)); err != nil {
		return models.UnifiedTrackingInfo{}, errors.Wrap(err, "append history")
	}

	if in.UserID != "" {
		st := models.SavedTracking{
			ID:             s.newID(),
			UserID:         in.UserID,
			TrackingNumber: trackingNumber,
			Carrier:        info.Carrier,
		}
		if alias := strings.TrimSpace(in.Alias); alias != "" {
			st.Alias = &alias
		}
		if err := s.repo.UpsertSavedTracking(ctx, st); err != nil {
			return models.UnifiedTrackingInfo{}, errors.Wrap(err, "reconcile saved tracking")
		}
	}

	s.refreshLatestView(ctx, trackingNumber)
	s.publishObserved(ctx, info, in.UserID)

	return info, nil
}

// Latest serves the cached read path: the latest unified view reconstructed
// from the history log, never touching the classifier pipeline or the data
// source (beyond the carrier fallback for old entries stored without one).
func (s *Service) Latest(ctx context.Context, trackingNumber string) (models.UnifiedTrackingInfo, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return models.UnifiedTrackingInfo{}, ErrEmptyTrackingNumber
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, latestViewKey(trackingNumber)); err == nil && ok {
			var view models.UnifiedTrackingInfo
			if json.Unmarshal(b, &view) == nil {
				return view, nil
			}
		}
	}

	view, err := s.buildLatestView(ctx, trackingNumber)
	if err != nil {
		return models.UnifiedTrackingInfo{}, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if b, err := json.Marshal(view); err == nil {
			_ = s.cache.Set(ctx, latestViewKey(trackingNumber), b, s.cacheTTL)
		}
	}
	return view, nil
}

// History returns the full observed timeline, ascending by timestamp.
// "Never seen" and "seen with zero entries" are indistinguishable by design;
// both come back as ErrNoHistory.
func (s *Service) History(ctx context.Context, trackingNumber string) ([]models.TrackingEvent, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, ErrEmptyTrackingNumber
	}

	entries, err := s.repo.ListHistory(ctx, trackingNumber)
	if err != nil {
		return nil, errors.Wrap(err, "list history")
	}
	if len(entries) == 0 {
		return nil, ErrNoHistory
	}
	return eventsFromHistory(entries), nil
}

func (s *Service) SavedTrackings(ctx context.Context, userID string) ([]*models.SavedTracking, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	out, err := s.repo.ListSavedTrackings(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list saved trackings")
	}
	return out, nil
}

// normalize derives the fields the carrier payload does not own. IsDelivered
// comes only from the current status text, never from event counts or the
// estimated delivery date.
func normalize(info *models.UnifiedTrackingInfo) {
	info.IsDelivered = strings.Contains(strings.ToLower(info.CurrentStatus), "delivered")
	if info.TrackingEvents == nil {
		info.TrackingEvents = []models.TrackingEvent{}
	}
}

// historyEntryFrom seeds a history entry from a normalized snapshot. The
// first event in the source's own ordering is "most recent"; the normalizer
// does not re-sort. Empty event lists are fine: location/description stay nil.
func historyEntryFrom(info models.UnifiedTrackingInfo, userID string) models.HistoryEntry {
	e := models.HistoryEntry{
		TrackingNumber: info.TrackingNumber,
		Carrier:        info.Carrier,
		Status:         info.CurrentStatus,
		ObservedAt:     info.LastUpdated,
	}
	if len(info.TrackingEvents) > 0 {
		e.Location = info.TrackingEvents[0].Location
		e.Description = info.TrackingEvents[0].Description
	}
	if userID != "" {
		e.UserID = &userID
	}
	return e
}

func (s *Service) buildLatestView(ctx context.Context, trackingNumber string) (models.UnifiedTrackingInfo, error) {
	latest, err := s.repo.LatestHistory(ctx, trackingNumber)
	if err != nil {
		return models.UnifiedTrackingInfo{}, errors.Wrap(err, "latest history")
	}
	if latest == nil {
		return models.UnifiedTrackingInfo{}, ErrNoHistory
	}

	entries, err := s.repo.ListHistory(ctx, trackingNumber)
	if err != nil {
		return models.UnifiedTrackingInfo{}, errors.Wrap(err, "list history")
	}

	carrierTag := latest.Carrier
	if carrierTag == "" {
		// Старые записи могли сохраняться без перевозчика — доопределяем
		// классификатором по самому номеру.
		carrierTag = carriers.Detect(trackingNumber)
	}

	view := models.UnifiedTrackingInfo{
		TrackingNumber: latest.TrackingNumber,
		Carrier:        carrierTag,
		CurrentStatus:  latest.Status,
		// EstimatedDelivery is not persisted, so the cached view never has one.
		TrackingEvents: eventsFromHistory(entries),
		LastUpdated:    latest.CreatedAt,
	}
	normalize(&view)
	return view, nil
}

func eventsFromHistory(entries []*models.HistoryEntry) []models.TrackingEvent {
	out := make([]models.TrackingEvent, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.TrackingEvent{
			Status:      e.Status,
			Location:    e.Location,
			Timestamp:   e.ObservedAt,
			Description: e.Description,
		})
	}
	return out
}

// refreshLatestView перестраивает кэш после записи. Лучшее усилие: сбой кэша
// не должен ронять пайплайн.
func (s *Service) refreshLatestView(ctx context.Context, trackingNumber string) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	view, err := s.buildLatestView(ctx, trackingNumber)
	if err != nil {
		slog.Warn("refresh latest view cache failed", "trackingNumber", trackingNumber, "err", err)
		return
	}
	if b, err := json.Marshal(view); err == nil {
		_ = s.cache.Set(ctx, latestViewKey(trackingNumber), b, s.cacheTTL)
	}
}

func (s *Service) publishObserved(ctx context.Context, info models.UnifiedTrackingInfo, userID string) {
	if s.producer == nil {
		return
	}
	msg := messages.TrackingObserved{
		TrackingNumber: info.TrackingNumber,
		Carrier:        string(info.Carrier),
		Status:         info.CurrentStatus,
		IsDelivered:    info.IsDelivered,
		ObservedAt:     info.LastUpdated,
	}
	if userID != "" {
		msg.UserID = &userID
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, []byte(info.TrackingNumber), b); err != nil {
		slog.Warn("publish tracking.observed failed",
			"trackingNumber", info.TrackingNumber, "carrier", info.Carrier, "err", err)
	}
}

func latestViewKey(trackingNumber string) string {
	return "tracking:" + trackingNumber + ":latest"
}

func carrierRateKey(c models.Carrier) string {
	return "rl:carrier:" + string(c)
}
