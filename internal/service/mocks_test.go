package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/crmbridge/bridge-server/internal/model"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) UpdateTokens(ctx context.Context, id string, params model.UpdateTokensParams) (*model.User, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockStateRepo struct {
	mock.Mock
}

func (m *mockStateRepo) Create(ctx context.Context, params model.CreateOAuthStateParams) (*model.OAuthState, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthState), args.Error(1)
}

func (m *mockStateRepo) Consume(ctx context.Context, state string) (*model.OAuthState, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OAuthState), args.Error(1)
}

func (m *mockStateRepo) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// memCallLogRepo is an in-memory call log store with the same duplicate
// semantics as the SQL one.
type memCallLogRepo struct {
	mu      sync.Mutex
	records map[string]model.CallLogRecord
	creates int
}

func newMemCallLogRepo() *memCallLogRepo {
	return &memCallLogRepo{records: map[string]model.CallLogRecord{}}
}

func (r *memCallLogRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.CallLogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memCallLogRepo) FindBySessionIDs(ctx context.Context, sessionIDs []string) ([]model.CallLogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CallLogRecord
	for _, id := range sessionIDs {
		if rec, ok := r.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memCallLogRepo) Create(ctx context.Context, params model.CreateCallLogRecordParams) (*model.CallLogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if _, ok := r.records[params.SessionID]; ok {
		return nil, nil
	}
	rec := model.CallLogRecord{
		ID:              params.ID,
		SessionID:       params.SessionID,
		Platform:        params.Platform,
		UserID:          params.UserID,
		ThirdPartyLogID: params.ThirdPartyLogID,
		ContactID:       params.ContactID,
		NoteSnapshot:    params.NoteSnapshot,
	}
	r.records[params.SessionID] = rec
	return &rec, nil
}

func (r *memCallLogRepo) UpdateNoteSnapshot(ctx context.Context, sessionID string, snapshot model.JSONB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[sessionID]
	rec.NoteSnapshot = snapshot
	r.records[sessionID] = rec
	return nil
}

type memMessageLogRepo struct {
	mu      sync.Mutex
	records []model.MessageLogRecord
}

func (r *memMessageLogRepo) FindByMessageIDs(ctx context.Context, messageIDs []string) ([]model.MessageLogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, id := range messageIDs {
		want[id] = true
	}
	var out []model.MessageLogRecord
	for _, rec := range r.records {
		if want[rec.MessageID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memMessageLogRepo) FindDaySMS(ctx context.Context, day model.ConversationDay) ([]model.MessageLogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MessageLogRecord
	for _, rec := range r.records {
		if rec.ConversationLogID == day.ConversationLogID &&
			rec.UserID == day.UserID &&
			rec.Platform == day.Platform &&
			rec.MessageType == model.MessageKindSMS {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memMessageLogRepo) Create(ctx context.Context, params model.CreateMessageLogRecordParams) (*model.MessageLogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.MessageID == params.MessageID {
			return nil, nil
		}
	}
	rec := model.MessageLogRecord{
		ID:                params.ID,
		MessageID:         params.MessageID,
		ConversationID:    params.ConversationID,
		ConversationLogID: params.ConversationLogID,
		MessageType:       params.MessageType,
		Platform:          params.Platform,
		UserID:            params.UserID,
		ThirdPartyLogID:   params.ThirdPartyLogID,
		ContactID:         params.ContactID,
		MessageSnapshot:   params.MessageSnapshot,
	}
	r.records = append(r.records, rec)
	return &rec, nil
}

type memRecordingCache struct {
	mu    sync.Mutex
	links map[string]string
}

func newMemRecordingCache() *memRecordingCache {
	return &memRecordingCache{links: map[string]string{}}
}

func (c *memRecordingCache) Put(ctx context.Context, sessionID, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[sessionID] = link
	return nil
}

func (c *memRecordingCache) Take(ctx context.Context, sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	link := c.links[sessionID]
	delete(c.links, sessionID)
	return link, nil
}

type memClaimStore struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemClaimStore() *memClaimStore {
	return &memClaimStore{held: map[string]bool{}}
}

func (s *memClaimStore) Claim(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held[key] {
		return false, nil
	}
	s.held[key] = true
	return true, nil
}

func (s *memClaimStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, key)
	return nil
}
