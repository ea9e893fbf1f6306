package licensesync

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/licensedesk/licensedesk/app/models"
)

type fakeStore struct {
	byAppID   map[string]*models.License
	byEmail   map[string]*models.License
	byCountID map[int]*models.License

	lookupErr      error
	failFirstFlush bool
	flushCalls     int

	modified  []models.License
	pushedIDs []uint
	failedIDs []uint
	mirrors   []models.ExternalLicenseMirror

	nextID uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byAppID:   make(map[string]*models.License),
		byEmail:   make(map[string]*models.License),
		byCountID: make(map[int]*models.License),
	}
}

func (s *fakeStore) add(l *models.License) {
	if l.ID == 0 {
		s.nextID++
		l.ID = s.nextID
	}
	if l.ExternalAppID != "" {
		s.byAppID[l.ExternalAppID] = l
	}
	if l.ExternalEmail != "" {
		s.byEmail[l.ExternalEmail] = l
	}
	if l.ExternalCountID != 0 {
		s.byCountID[l.ExternalCountID] = l
	}
}

func (s *fakeStore) FindByExternalAppID(appID string) (*models.License, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if l, ok := s.byAppID[appID]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) FindByExternalEmail(email string) (*models.License, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if l, ok := s.byEmail[email]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) FindByExternalCountID(countID int) (*models.License, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if l, ok := s.byCountID[countID]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) FlushBatch(creates []*models.License, updates []*models.License) error {
	s.flushCalls++
	if s.failFirstFlush && s.flushCalls == 1 {
		return errors.New("deadlock found when trying to get lock")
	}
	for _, l := range creates {
		s.add(l)
	}
	for _, l := range updates {
		s.add(l)
	}
	return nil
}

func (s *fakeStore) MarkSyncFailed(ids []uint, message string) error {
	s.failedIDs = append(s.failedIDs, ids...)
	return nil
}

func (s *fakeStore) ModifiedSinceLastSync() ([]models.License, error) {
	return s.modified, nil
}

func (s *fakeStore) MarkPushed(ids []uint, _ time.Time) error {
	s.pushedIDs = append(s.pushedIDs, ids...)
	return nil
}

func (s *fakeStore) RecordMirrors(rows []models.ExternalLicenseMirror) error {
	s.mirrors = append(s.mirrors, rows...)
	return nil
}

type fakeSource struct {
	records    []ExternalLicenseRecord
	fetchErr   error
	fetchCalls int

	updatedAppIDs []string
	updatedEmails []string
	updateErr     map[string]error
}

func (s *fakeSource) FetchAll(_ context.Context) ([]ExternalLicenseRecord, error) {
	s.fetchCalls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.records, nil
}

func (s *fakeSource) UpdateByAppID(_ context.Context, appID string, _ map[string]interface{}) error {
	if err := s.updateErr[appID]; err != nil {
		return err
	}
	s.updatedAppIDs = append(s.updatedAppIDs, appID)
	return nil
}

func (s *fakeSource) UpdateByEmail(_ context.Context, email string, _ map[string]interface{}) error {
	if err := s.updateErr[email]; err != nil {
		return err
	}
	s.updatedEmails = append(s.updatedEmails, email)
	return nil
}

func newTestOrchestrator(source Source, store Store) *Orchestrator {
	return NewOrchestrator(source, store, NewMemoryTracker(), nil)
}

func extRecord(countID int, appID, email string) ExternalLicenseRecord {
	return ExternalLicenseRecord{
		CountID:      countID,
		AppID:        appID,
		Email:        email,
		LicenseType:  LicenseTypeProduct,
		BusinessName: "Mel's Diner",
		Zip:          "10001",
		MonthlyFee:   49.9,
		SMSBalance:   120,
		Active:       true,
		RawJSON:      `{"count_id":` + strconv.Itoa(countID) + `}`,
	}
}

func TestRunSyncCreatesAndUpdates(t *testing.T) {
	store := newFakeStore()
	existing := &models.License{
		Key:           models.NewLicenseKey(),
		SeatsTotal:    1,
		Zip:           "94110",
		ExternalAppID: "app-2",
	}
	store.add(existing)

	source := &fakeSource{records: []ExternalLicenseRecord{
		extRecord(1, "app-1", "one@example.com"),
		extRecord(2, "app-2", "two@example.com"),
	}}

	o := newTestOrchestrator(source, store)
	res, err := o.RunSync(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalExternalFetched)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 0, res.Skipped)

	created, lookupErr := store.FindByExternalAppID("app-1")
	require.NoError(t, lookupErr)
	assert.Equal(t, models.MATCH_CREATED, created.MatchConfidence)
	assert.Equal(t, models.SYNC_STATUS_SYNCED, created.ExternalSyncStatus)

	updated, lookupErr := store.FindByExternalAppID("app-2")
	require.NoError(t, lookupErr)
	assert.Equal(t, "10001", updated.Zip)
	assert.Equal(t, models.MATCH_BY_APP_ID, updated.MatchConfidence)
	assert.NotNil(t, updated.LastExternalSyncAt)
}

func TestRunSyncSecondRunIsNoop(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{records: []ExternalLicenseRecord{
		extRecord(1, "app-1", "one@example.com"),
		extRecord(2, "", "two@example.com"),
	}}

	o := newTestOrchestrator(source, store)
	first, err := o.RunSync(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	second, err := o.RunSync(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Skipped)
	assert.Empty(t, second.Failed)
}

func TestRunSyncDryRunWritesNothing(t *testing.T) {
	store := newFakeStore()
	existing := &models.License{
		Key:           models.NewLicenseKey(),
		SeatsTotal:    1,
		Zip:           "94110",
		ExternalAppID: "app-2",
	}
	store.add(existing)

	source := &fakeSource{records: []ExternalLicenseRecord{
		extRecord(1, "app-1", "one@example.com"),
		extRecord(2, "app-2", "two@example.com"),
	}}

	o := newTestOrchestrator(source, store)
	res, err := o.RunSync(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Updated)

	assert.Equal(t, 0, store.flushCalls)
	assert.Empty(t, store.mirrors)
	assert.Equal(t, "94110", existing.Zip)
	_, lookupErr := store.FindByExternalAppID("app-1")
	assert.ErrorIs(t, lookupErr, gorm.ErrRecordNotFound)
}

func TestRunSyncDuplicateFeedRecordFails(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{records: []ExternalLicenseRecord{
		extRecord(1, "app-1", "one@example.com"),
		extRecord(2, "app-1", "other@example.com"),
	}}

	o := newTestOrchestrator(source, store)
	res, err := o.RunSync(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "app-1", res.Failed[0].AppID)
	assert.Contains(t, res.Failed[0].Error, "duplicate correlation key")
}

func TestRunSyncBatchFailureIsIsolated(t *testing.T) {
	store := newFakeStore()
	store.failFirstFlush = true
	existing := &models.License{
		Key:           models.NewLicenseKey(),
		SeatsTotal:    1,
		ExternalAppID: "app-1",
	}
	store.add(existing)

	source := &fakeSource{records: []ExternalLicenseRecord{
		extRecord(1, "app-1", "one@example.com"),
		extRecord(2, "app-2", "two@example.com"),
	}}

	o := newTestOrchestrator(source, store)
	res, err := o.RunSync(context.Background(), Options{BatchSize: 1})
	require.NoError(t, err)

	// First batch fails as a whole, second batch still lands. The existing
	// row in the failed batch gets the failure stamped on it.
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "app-1", res.Failed[0].AppID)
	assert.Equal(t, []uint{existing.ID}, store.failedIDs)

	_, lookupErr := store.FindByExternalAppID("app-2")
	assert.NoError(t, lookupErr)
}

func TestRunSyncRejectsConcurrentRun(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{}
	tracker := NewMemoryTracker()
	require.True(t, tracker.Begin())

	o := NewOrchestrator(source, store, tracker, nil)
	res, err := o.RunSync(context.Background(), Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrSyncAlreadyRunning)
	assert.Equal(t, 0, source.fetchCalls)
	assert.Nil(t, tracker.Status().LastResult)
	assert.True(t, tracker.Status().InProgress)
}

func TestRunSyncForceWaitsForIdle(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{records: []ExternalLicenseRecord{
		extRecord(1, "app-1", "one@example.com"),
	}}
	tracker := NewMemoryTracker()
	require.True(t, tracker.Begin())

	go func() {
		time.Sleep(500 * time.Millisecond)
		tracker.End(nil)
	}()

	o := NewOrchestrator(source, store, tracker, nil)
	res, err := o.RunSync(context.Background(), Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.False(t, tracker.Status().InProgress)
}

func TestRunSyncBudgetExceededSkipsRemaining(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{records: []ExternalLicenseRecord{
		extRecord(1, "app-1", "one@example.com"),
		extRecord(2, "app-2", "two@example.com"),
		extRecord(3, "app-3", "three@example.com"),
	}}

	o := newTestOrchestrator(source, store)
	o.SetBudget(time.Nanosecond)

	res, err := o.RunSync(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrSyncTimedOut)
	require.NotNil(t, res)
	assert.True(t, res.TimedOut)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 0, res.Created)
	assert.False(t, o.Status().InProgress)
}

func TestRunSyncSourceFailureKeepsLastResult(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{records: []ExternalLicenseRecord{
		extRecord(1, "app-1", "one@example.com"),
	}}

	o := newTestOrchestrator(source, store)
	first, err := o.RunSync(context.Background(), Options{})
	require.NoError(t, err)

	source.fetchErr = ErrSourceUnavailable
	res, err := o.RunSync(context.Background(), Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	status := o.Status()
	assert.False(t, status.InProgress)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, first.RunID, status.LastResult.RunID)
}

func TestRunSyncBidirectionalPush(t *testing.T) {
	store := newFakeStore()
	store.modified = []models.License{
		{ID: 7, ExternalAppID: "app-7", DBA: "New Name"},
		{ID: 8, ExternalEmail: "eight@example.com", DBA: "Other"},
		{ID: 9, ExternalAppID: "app-9"},
	}
	source := &fakeSource{updateErr: map[string]error{
		"app-9": errors.New("vendor update failed: status=500"),
	}}

	o := newTestOrchestrator(source, store)
	res, err := o.RunSync(context.Background(), Options{SyncToInternalOnly: true, Bidirectional: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pushed)
	require.Len(t, res.PushFailures, 1)
	assert.Equal(t, "app-9", res.PushFailures[0].AppID)
	assert.Equal(t, []string{"app-7"}, source.updatedAppIDs)
	assert.Equal(t, []string{"eight@example.com"}, source.updatedEmails)
	assert.Equal(t, []uint{7, 8}, store.pushedIDs)
	assert.Equal(t, 0, source.fetchCalls)
}

func TestRunSyncMirrorsRawPayloads(t *testing.T) {
	store := newFakeStore()
	rec := extRecord(1, "app-1", "one@example.com")
	source := &fakeSource{records: []ExternalLicenseRecord{rec}}

	o := newTestOrchestrator(source, store)
	res, err := o.RunSync(context.Background(), Options{})
	require.NoError(t, err)

	require.Len(t, store.mirrors, 1)
	assert.Equal(t, res.RunID, store.mirrors[0].SyncRunID)
	assert.Equal(t, 1, store.mirrors[0].CountID)
	assert.Equal(t, rec.RawJSON, store.mirrors[0].RawPayloadJSON)
}
