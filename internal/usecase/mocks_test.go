package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, source string) (entity.Cookies, error) {
	args := m.Called(ctx, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(entity.Cookies), args.Error(1)
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FetchResult), args.Error(1)
}

type MockCentralStore struct {
	mock.Mock
}

func (m *MockCentralStore) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCentralStore) UpsertBatch(ctx context.Context, items []*entity.ContentItem) (int, error) {
	args := m.Called(ctx, items)
	return args.Int(0), args.Error(1)
}

func (m *MockCentralStore) InsertNew(ctx context.Context, items []*entity.ContentItem) (int, error) {
	args := m.Called(ctx, items)
	return args.Int(0), args.Error(1)
}

// memSessionRepo keeps sessions in memory.
type memSessionRepo struct {
	sessions map[string]*entity.Session
	saved    int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*entity.Session{}}
}

func (r *memSessionRepo) Load(_ context.Context, source string) (*entity.Session, error) {
	s, ok := r.sessions[source]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (r *memSessionRepo) Save(_ context.Context, s *entity.Session) error {
	r.sessions[s.Source] = s
	r.saved++
	return nil
}

// memContentRepo implements the content, snapshot and link repositories.
type memContentRepo struct {
	mu        sync.Mutex
	items     map[string]*entity.ContentItem
	order     []string
	snapshots map[string][]byte
	edges     map[entity.LinkEdge]struct{}
}

func newMemContentRepo(keys ...string) *memContentRepo {
	r := &memContentRepo{
		items:     map[string]*entity.ContentItem{},
		snapshots: map[string][]byte{},
		edges:     map[entity.LinkEdge]struct{}{},
	}
	for _, k := range keys {
		r.items[k] = &entity.ContentItem{SourceID: k}
		r.order = append(r.order, k)
	}
	return r
}

func (r *memContentRepo) Keys(_ context.Context, _ string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...), nil
}

func (r *memContentRepo) Insert(_ context.Context, item *entity.ContentItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.SourceID]; ok {
		return false, nil
	}
	r.items[item.SourceID] = item
	r.order = append(r.order, item.SourceID)
	return true, nil
}

func (r *memContentRepo) Find(_ context.Context, _ string, sourceID string) (*entity.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[sourceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return item, nil
}

func (r *memContentRepo) SaveSnapshot(_ context.Context, _ string, sourceID string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[sourceID] = raw
	return nil
}

func (r *memContentRepo) AddEdge(_ context.Context, edge entity.LinkEdge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.edges[edge]; ok {
		return false, nil
	}
	r.edges[edge] = struct{}{}
	return true, nil
}

func (r *memContentRepo) ReadBatch(_ context.Context, offset int64, limit int) ([]*entity.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= int64(len(r.order)) {
		return nil, nil
	}
	end := offset + int64(limit)
	if end > int64(len(r.order)) {
		end = int64(len(r.order))
	}
	out := make([]*entity.ContentItem, 0, end-offset)
	for _, k := range r.order[offset:end] {
		out = append(out, r.items[k])
	}
	return out, nil
}

func (r *memContentRepo) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// memLockRepo mirrors the file lock semantics.
type memLockRepo struct {
	mu      sync.Mutex
	markers map[string]*entity.LockMarker
	now     func() time.Time

	refreshes int
}

func newMemLockRepo() *memLockRepo {
	return &memLockRepo{markers: map[string]*entity.LockMarker{}, now: time.Now}
}

func (r *memLockRepo) Acquire(_ context.Context, m *entity.LockMarker, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.markers[m.Source]; ok && !held.Expired(r.now(), ttl) {
		return repository.ErrLockHeld
	}
	r.markers[m.Source] = m
	return nil
}

func (r *memLockRepo) Release(_ context.Context, m *entity.LockMarker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.markers[m.Source]; ok && held.Owner == m.Owner {
		delete(r.markers, m.Source)
	}
	return nil
}

func (r *memLockRepo) Refresh(_ context.Context, m *entity.LockMarker, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	held, ok := r.markers[m.Source]
	if !ok || held.Owner != m.Owner {
		return repository.ErrLockLost
	}
	r.refreshes++
	held.CreatedAt = r.now()
	return nil
}

func (r *memLockRepo) held(source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.markers[source]
	return ok
}

type staticEnumerator struct {
	candidates []entity.Candidate
	err        error
}

func (e *staticEnumerator) Enumerate(context.Context, entity.Cookies) ([]entity.Candidate, error) {
	return e.candidates, e.err
}

type memCounterRepo struct {
	reports []*entity.RunReport
}

func (r *memCounterRepo) Append(_ context.Context, report *entity.RunReport) error {
	r.reports = append(r.reports, report)
	return nil
}

type memCursorRepo struct {
	cursor entity.ExportCursor
	saves  int
}

func (r *memCursorRepo) Load(context.Context) (*entity.ExportCursor, error) {
	c := r.cursor
	return &c, nil
}

func (r *memCursorRepo) Save(_ context.Context, c *entity.ExportCursor) error {
	r.cursor = *c
	r.saves++
	return nil
}

// stubParser returns a fixed page for every input.
type stubParser struct {
	page *entity.ParsedPage
	err  error
}

func (p stubParser) Parse([]byte, string) (*entity.ParsedPage, error) {
	if p.err != nil {
		return nil, p.err
	}
	cp := *p.page
	return &cp, nil
}

// hostRegistry resolves by exact URL prefix.
type hostRegistry map[string]repository.PageParser

func (r hostRegistry) Resolve(pageURL string) (repository.PageParser, error) {
	for prefix, p := range r {
		if len(pageURL) >= len(prefix) && pageURL[:len(prefix)] == prefix {
			return p, nil
		}
	}
	return nil, &repository.NoAdapterError{URL: pageURL}
}
