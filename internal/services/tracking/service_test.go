package tracking

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/BearBump/PackTrace/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	entries   []models.HistoryEntry
	appendErr error

	saved       map[string]models.SavedTracking // userID|trackingNumber
	upsertCalls int
	upsertErr   error

	latestCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{saved: map[string]models.SavedTracking{}}
}

func (f *fakeRepo) AppendHistory(ctx context.Context, e models.HistoryEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeRepo) LatestHistory(ctx context.Context, tn string) (*models.HistoryEntry, error) {
	f.latestCalls++
	var latest *models.HistoryEntry
	for i := range f.entries {
		e := f.entries[i]
		if e.TrackingNumber != tn {
			continue
		}
		if latest == nil || e.ObservedAt.After(latest.ObservedAt) {
			latest = &e
		}
	}
	return latest, nil
}

func (f *fakeRepo) ListHistory(ctx context.Context, tn string) ([]*models.HistoryEntry, error) {
	var out []*models.HistoryEntry
	for i := range f.entries {
		if f.entries[i].TrackingNumber == tn {
			out = append(out, &f.entries[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (f *fakeRepo) UpsertSavedTracking(ctx context.Context, st models.SavedTracking) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	key := st.UserID + "|" + st.TrackingNumber
	if existing, ok := f.saved[key]; ok {
		// Та же условная семантика, что и у атомарного upsert в хранилище.
		if st.Alias != nil && *st.Alias != "" && (existing.Alias == nil || *existing.Alias != *st.Alias) {
			existing.Alias = st.Alias
			f.saved[key] = existing
		}
		return nil
	}
	f.saved[key] = st
	return nil
}

func (f *fakeRepo) ListSavedTrackings(ctx context.Context, userID string) ([]*models.SavedTracking, error) {
	var out []*models.SavedTracking
	for k := range f.saved {
		st := f.saved[k]
		if st.UserID == userID {
			out = append(out, &st)
		}
	}
	return out, nil
}

type fakeSource struct {
	info    models.UnifiedTrackingInfo
	err     error
	calls   int
	carrier models.Carrier
}

func (f *fakeSource) GetTracking(ctx context.Context, tn string, c models.Carrier) (models.UnifiedTrackingInfo, error) {
	f.calls++
	f.carrier = c
	return f.info, f.err
}

type fakeCache struct {
	m map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

type fakeProducer struct {
	keys   [][]byte
	values [][]byte
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

type fakeRL struct {
	allow bool
	key   string
	calls int
}

func (rl *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	rl.calls++
	rl.key = key
	return rl.allow, 1, nil
}

func deliveredSnapshot(tn string) models.UnifiedTrackingInfo {
	now := time.Now().UTC()
	return models.UnifiedTrackingInfo{
		TrackingNumber: tn,
		Carrier:        models.CarrierUSPS,
		CurrentStatus:  "Delivered",
		TrackingEvents: []models.TrackingEvent{
			{Status: "Delivered", Location: ptr("New York, NY"), Timestamp: now.Add(-1 * time.Hour), Description: ptr("Delivered to mailbox")},
			{Status: "Out for Delivery", Location: ptr("New York, NY"), Timestamp: now.Add(-3 * time.Hour)},
			{Status: "In Transit", Location: ptr("Philadelphia, PA"), Timestamp: now.Add(-24 * time.Hour)},
		},
		LastUpdated: now,
	}
}

func ptr(s string) *string { return &s }

func TestTrack_validation(t *testing.T) {
	s := New(newFakeRepo(), &fakeSource{})

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: ""})
	require.ErrorIs(t, err, ErrEmptyTrackingNumber)

	_, err = s.Track(context.Background(), TrackInput{TrackingNumber: "   "})
	require.ErrorIs(t, err, ErrEmptyTrackingNumber)
}

func TestTrack_unknownCarrierShortCircuits(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{}
	s := New(repo, src)

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "ABC123XYZ"})
	require.ErrorIs(t, err, ErrUnknownCarrier)
	require.Zero(t, src.calls) // источник данных не должен вызываться
	require.Empty(t, repo.entries)
}

func TestTrack_anonymousDeliveredLookup(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{info: deliveredSnapshot("9400100000000000000000")}
	s := New(repo, src)

	info, err := s.Track(context.Background(), TrackInput{TrackingNumber: "9400100000000000000000"})
	require.NoError(t, err)
	require.True(t, info.IsDelivered)
	require.Equal(t, models.CarrierUSPS, src.carrier)

	require.Len(t, repo.entries, 1)
	e := repo.entries[0]
	require.Equal(t, "Delivered", e.Status)
	require.Nil(t, e.UserID)
	// Location/description seeded from the FIRST event in source order.
	require.Equal(t, "New York, NY", *e.Location)
	require.Equal(t, "Delivered to mailbox", *e.Description)
	require.Equal(t, src.info.LastUpdated, e.ObservedAt)

	// Анонимный лукап не создаёт закладку.
	require.Zero(t, repo.upsertCalls)
}

func TestTrack_isDeliveredFromStatusOnly(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{info: models.UnifiedTrackingInfo{
		TrackingNumber: "1Z9999999999999999",
		Carrier:        models.CarrierUPS,
		CurrentStatus:  "Out for Delivery",
		TrackingEvents: []models.TrackingEvent{{Status: "Out for Delivery", Timestamp: time.Now().UTC()}},
		LastUpdated:    time.Now().UTC(),
		// Even an estimated delivery in the past must not flip the flag.
		EstimatedDelivery: ptrTime(time.Now().Add(-48 * time.Hour)),
	}}
	s := New(repo, src)

	info, err := s.Track(context.Background(), TrackInput{TrackingNumber: "1Z9999999999999999"})
	require.NoError(t, err)
	require.False(t, info.IsDelivered)

	src.info.CurrentStatus = "delivered to neighbor"
	info, err = s.Track(context.Background(), TrackInput{TrackingNumber: "1Z9999999999999999"})
	require.NoError(t, err)
	require.True(t, info.IsDelivered)
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestTrack_authenticatedCreatesSavedTracking(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{info: deliveredSnapshot("1Z1234567890123456")}
	src.info.Carrier = models.CarrierUPS
	s := New(repo, src)

	_, err := s.Track(context.Background(), TrackInput{
		TrackingNumber: "1Z1234567890123456",
		Alias:          "My UPS Package",
		UserID:         "u1",
	})
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	require.NotNil(t, repo.entries[0].UserID)
	require.Equal(t, "u1", *repo.entries[0].UserID)

	require.Equal(t, 1, repo.upsertCalls)
	st := repo.saved["u1|1Z1234567890123456"]
	require.Equal(t, models.CarrierUPS, st.Carrier)
	require.Equal(t, "My UPS Package", *st.Alias)

	// Второй лукап с новым алиасом: ещё одна запись в журнале, та же закладка
	// с обновлённым алиасом.
	_, err = s.Track(context.Background(), TrackInput{
		TrackingNumber: "1Z1234567890123456",
		Alias:          "New Alias",
		UserID:         "u1",
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 2)
	require.Len(t, repo.saved, 1)
	require.Equal(t, "New Alias", *repo.saved["u1|1Z1234567890123456"].Alias)
}

func TestTrack_notFoundAtCarrierIsNotPersisted(t *testing.T) {
	repo := newFakeRepo()
	msg := "Tracking number not found or invalid for UPS."
	src := &fakeSource{info: models.UnifiedTrackingInfo{
		TrackingNumber: "1ZERROR9999999999",
		Carrier:        models.CarrierUPS,
		CurrentStatus:  "Exception",
		TrackingEvents: []models.TrackingEvent{},
		LastUpdated:    time.Now().UTC(),
		Error:          &msg,
	}}
	s := New(repo, src)

	info, err := s.Track(context.Background(), TrackInput{TrackingNumber: "1ZERROR9999999999", UserID: "u1"})
	require.Error(t, err)

	var nf *NotFoundAtCarrierError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, models.CarrierUPS, nf.Carrier)
	require.Equal(t, msg, nf.Message)

	// Снапшот с Exception возвращается вызывающему, но в журнал не пишется.
	require.Equal(t, "Exception", info.CurrentStatus)
	require.Empty(t, repo.entries)
	require.Zero(t, repo.upsertCalls)
}

func TestTrack_transportErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{err: errors.New("connection refused")}
	s := New(repo, src)

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "1Z9999999999999999"})
	require.Error(t, err)
	require.Empty(t, repo.entries)

	var nf *NotFoundAtCarrierError
	require.False(t, errors.As(err, &nf)) // транспортный сбой — не доменный not-found
}

func TestTrack_appendFailureStopsPipeline(t *testing.T) {
	repo := newFakeRepo()
	repo.appendErr = errors.New("pg down")
	src := &fakeSource{info: deliveredSnapshot("1Z1234567890123456")}
	s := New(repo, src)

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "1Z1234567890123456", UserID: "u1", Alias: "x"})
	require.Error(t, err)
	// Fail-fast: сбой записи журнала не даёт дойти до закладки.
	require.Zero(t, repo.upsertCalls)
}

func TestTrack_savedTrackingFailurePropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.upsertErr = errors.New("pg down")
	src := &fakeSource{info: deliveredSnapshot("1Z1234567890123456")}
	s := New(repo, src)

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "1Z1234567890123456", UserID: "u1"})
	require.Error(t, err)
}

func TestTrack_publishIsBestEffort(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{info: deliveredSnapshot("9400100000000000000000")}

	p := &fakeProducer{err: errors.New("kafka down")}
	s := New(repo, src).WithProducer(p)

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "9400100000000000000000"})
	require.NoError(t, err) // сбой брокера не роняет лукап
	require.Len(t, repo.entries, 1)
}

func TestTrack_publishesObservedMessage(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{info: deliveredSnapshot("9400100000000000000000")}
	p := &fakeProducer{}
	s := New(repo, src).WithProducer(p)

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "9400100000000000000000", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, p.values, 1)
	require.Equal(t, []byte("9400100000000000000000"), p.keys[0])

	var got map[string]any
	require.NoError(t, json.Unmarshal(p.values[0], &got))
	require.Equal(t, "USPS", got["carrier"])
	require.Equal(t, true, got["is_delivered"])
	require.Equal(t, "u1", got["user_id"])
}

func TestTrack_rateLimited(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{}
	rl := &fakeRL{allow: false}
	s := New(repo, src).WithRateLimiter(rl, 10)

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "1Z9999999999999999"})
	require.ErrorIs(t, err, ErrRateLimited)
	require.Zero(t, src.calls)
	require.Equal(t, "rl:carrier:UPS", rl.key)
}

func TestLatest_picksMaxTimestampNotInsertionOrder(t *testing.T) {
	repo := newFakeRepo()
	s := New(repo, &fakeSource{})
	base := time.Now().UTC()

	// T1 вставлен первым, затем более старый T2: latest всё равно T1.
	repo.entries = append(repo.entries,
		models.HistoryEntry{TrackingNumber: "1234567890", Carrier: models.CarrierDHL, Status: "Delivered", ObservedAt: base, CreatedAt: base},
		models.HistoryEntry{TrackingNumber: "1234567890", Carrier: models.CarrierDHL, Status: "In Transit", ObservedAt: base.Add(-2 * time.Hour), CreatedAt: base},
	)

	view, err := s.Latest(context.Background(), "1234567890")
	require.NoError(t, err)
	require.Equal(t, "Delivered", view.CurrentStatus)
	require.True(t, view.IsDelivered)
	require.Nil(t, view.EstimatedDelivery) // в журнале не хранится

	// Events ascending for display.
	require.Len(t, view.TrackingEvents, 2)
	require.Equal(t, "In Transit", view.TrackingEvents[0].Status)
	require.Equal(t, "Delivered", view.TrackingEvents[1].Status)
}

func TestLatest_carrierFallbackToClassifier(t *testing.T) {
	repo := newFakeRepo()
	s := New(repo, &fakeSource{})

	// Старая запись без перевозчика: доопределяется по формату номера.
	repo.entries = append(repo.entries, models.HistoryEntry{
		TrackingNumber: "1Z9999999999999999", Carrier: "", Status: "In Transit",
		ObservedAt: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	})

	view, err := s.Latest(context.Background(), "1Z9999999999999999")
	require.NoError(t, err)
	require.Equal(t, models.CarrierUPS, view.Carrier)
}

func TestLatest_noHistory(t *testing.T) {
	s := New(newFakeRepo(), &fakeSource{})

	_, err := s.Latest(context.Background(), "1Z9999999999999999")
	require.ErrorIs(t, err, ErrNoHistory)

	_, err = s.Latest(context.Background(), " ")
	require.ErrorIs(t, err, ErrEmptyTrackingNumber)
}

func TestLatest_cacheHitSkipsRepo(t *testing.T) {
	repo := newFakeRepo()
	c := &fakeCache{m: map[string][]byte{}}
	s := New(repo, &fakeSource{}).WithCache(c, 10*time.Minute)

	want := models.UnifiedTrackingInfo{TrackingNumber: "C12345678", Carrier: models.CarrierOnTrac, CurrentStatus: "In Transit"}
	b, _ := json.Marshal(want)
	c.m["tracking:C12345678:latest"] = b

	view, err := s.Latest(context.Background(), "C12345678")
	require.NoError(t, err)
	require.Equal(t, models.CarrierOnTrac, view.Carrier)
	require.Zero(t, repo.latestCalls) // БД не трогали
}

func TestTrack_refreshesLatestViewCache(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{info: deliveredSnapshot("9400100000000000000000")}
	c := &fakeCache{m: map[string][]byte{}}
	s := New(repo, src).WithCache(c, 10*time.Minute)

	_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "9400100000000000000000"})
	require.NoError(t, err)

	b, ok := c.m["tracking:9400100000000000000000:latest"]
	require.True(t, ok)
	var view models.UnifiedTrackingInfo
	require.NoError(t, json.Unmarshal(b, &view))
	require.Equal(t, "Delivered", view.CurrentStatus)
}

func TestHistory_ascendingAndMonotonicallyAdditive(t *testing.T) {
	repo := newFakeRepo()
	src := &fakeSource{info: deliveredSnapshot("9400100000000000000000")}
	s := New(repo, src)

	for i := 0; i < 3; i++ {
		src.info.LastUpdated = time.Now().UTC().Add(time.Duration(-i) * time.Hour)
		_, err := s.Track(context.Background(), TrackInput{TrackingNumber: "9400100000000000000000"})
		require.NoError(t, err)
	}

	events, err := s.History(context.Background(), "9400100000000000000000")
	require.NoError(t, err)
	require.Len(t, events, 3) // ровно N записей после N лукапов
	for i := 1; i < len(events); i++ {
		require.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
	}
}

func TestHistory_noHistory(t *testing.T) {
	s := New(newFakeRepo(), &fakeSource{})

	_, err := s.History(context.Background(), "9400100000000000000000")
	require.ErrorIs(t, err, ErrNoHistory)
}

func TestSavedTrackings_requiresUser(t *testing.T) {
	s := New(newFakeRepo(), &fakeSource{})

	_, err := s.SavedTrackings(context.Background(), "")
	require.Error(t, err)
}
