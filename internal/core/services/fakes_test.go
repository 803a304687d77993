package services_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
)

var testNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type FakeSyncRepo struct {
	mu       sync.Mutex
	store    map[string]*domain.Synchronization
	history  []domain.Synchronization
	nextID   int
	storeErr error
}

func NewFakeSyncRepo() *FakeSyncRepo {
	return &FakeSyncRepo{store: make(map[string]*domain.Synchronization)}
}

func (r *FakeSyncRepo) NextID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return fmt.Sprintf("sync-%d", r.nextID), nil
}

func (r *FakeSyncRepo) Store(ctx context.Context, s *domain.Synchronization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storeErr != nil {
		return r.storeErr
	}
	if err := s.Validate(); err != nil {
		return err
	}
	clone := *s
	r.store[s.ID] = &clone
	r.history = append(r.history, clone)
	return nil
}

func (r *FakeSyncRepo) Fetch(ctx context.Context, id string) (*domain.Synchronization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.store[id]
	if !ok {
		return nil, domain.ErrSynchronizationNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *FakeSyncRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[id]; !ok {
		return domain.ErrSynchronizationNotFound
	}
	delete(r.store, id)
	return nil
}

func (r *FakeSyncRepo) ListByUserID(ctx context.Context, userID string) ([]*domain.Synchronization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*domain.Synchronization
	for _, s := range r.store {
		if s.UserID == userID {
			clone := *s
			list = append(list, &clone)
		}
	}
	return list, nil
}

func (r *FakeSyncRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.Synchronization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []*domain.Synchronization
	for _, s := range r.store {
		if s.ShouldAutoSync(now) && len(list) < limit {
			clone := *s
			list = append(list, &clone)
		}
	}
	return list, nil
}

type FakeLogStore struct {
	mu        sync.Mutex
	logs      map[string]*domain.Log
	created   int
	createErr error
	appendErr error
}

func NewFakeLogStore() *FakeLogStore {
	return &FakeLogStore{logs: make(map[string]*domain.Log)}
}

func (s *FakeLogStore) Create(ctx context.Context, prefix string, expiration time.Duration) (*domain.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created++
	l := &domain.Log{ID: fmt.Sprintf("log-%d", s.created), Prefix: prefix, Expiration: expiration}
	s.logs[l.ID] = &domain.Log{ID: l.ID, Prefix: prefix, Expiration: expiration}
	return l, nil
}

func (s *FakeLogStore) Fetch(ctx context.Context, id string) (*domain.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return nil, domain.ErrLogNotFound
	}
	clone := *l
	clone.Entries = append([]string(nil), l.Entries...)
	return &clone, nil
}

func (s *FakeLogStore) Append(ctx context.Context, log *domain.Log, lines ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	l, ok := s.logs[log.ID]
	if !ok {
		return domain.ErrLogNotFound
	}
	l.Entries = append(l.Entries, lines...)
	return nil
}

func (s *FakeLogStore) Text(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[id]; ok {
		return strings.Join(l.Entries, "\n")
	}
	return ""
}

type FakeQueue struct {
	mu   sync.Mutex
	jobs []domain.SyncJob
	err  error
}

func (q *FakeQueue) Enqueue(ctx context.Context, job domain.SyncJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *FakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, domain.ErrQueueEmpty
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return &job, nil
}

func (q *FakeQueue) Jobs() []domain.SyncJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.SyncJob(nil), q.jobs...)
}

type FakeUsers struct {
	users    map[string]*domain.User
	deltas   []int64
	usageErr error
}

func NewFakeUsers(users ...*domain.User) *FakeUsers {
	f := &FakeUsers{users: make(map[string]*domain.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *FakeUsers) Create(ctx context.Context, user *domain.User) error {
	f.users[user.ID] = user
	return nil
}

func (f *FakeUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *FakeUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *FakeUsers) AddUsedBytes(ctx context.Context, id string, delta int64) error {
	if f.usageErr != nil {
		return f.usageErr
	}
	u, ok := f.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.UsedBytes += delta
	f.deltas = append(f.deltas, delta)
	return nil
}

type FakeProvider struct {
	name        string
	metadata    *domain.ResourceMetadata
	metadataErr error
	providesURL bool
	body        string
	token       string
	askedItemID string
}

func (p *FakeProvider) Name() string { return p.name }

func (p *FakeProvider) GetResourceMetadata(ctx context.Context, itemID string) (*domain.ResourceMetadata, error) {
	p.askedItemID = itemID
	if p.metadataErr != nil {
		return nil, p.metadataErr
	}
	return p.metadata, nil
}

func (p *FakeProvider) ProvidesDownloadURL() bool { return p.providesURL }

func (p *FakeProvider) Stream(ctx context.Context, metadata *domain.ResourceMetadata) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(p.body)), nil
}

// FakeOAuthProvider also accepts a bearer token.
type FakeOAuthProvider struct {
	FakeProvider
}

func (p *FakeOAuthProvider) SetToken(token string) { p.token = token }

type FakeFactory struct {
	provider domain.DatasourceProvider
	err      error
	asked    string
}

func (f *FakeFactory) Get(ctx context.Context, name string, owner *domain.User) (domain.DatasourceProvider, error) {
	f.asked = name
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

type FakeOAuth struct {
	tokens    map[string]string
	revoked   []string
	revokeErr error
}

func (f *FakeOAuth) Token(ctx context.Context, userID, service string) (string, error) {
	t, ok := f.tokens[userID+"/"+service]
	if !ok {
		return "", domain.ErrOAuthNotFound
	}
	return t, nil
}

func (f *FakeOAuth) Save(ctx context.Context, userID, service, token string) error {
	if f.tokens == nil {
		f.tokens = map[string]string{}
	}
	f.tokens[userID+"/"+service] = token
	return nil
}

func (f *FakeOAuth) Revoke(ctx context.Context, userID, service string) error {
	f.revoked = append(f.revoked, userID+"/"+service)
	return f.revokeErr
}

type FakeRunner struct {
	run  func(ctx context.Context, job domain.ImportJob) (*domain.ImportOutcome, error)
	jobs []domain.ImportJob
}

func (r *FakeRunner) Run(ctx context.Context, job domain.ImportJob) (*domain.ImportOutcome, error) {
	r.jobs = append(r.jobs, job)
	return r.run(ctx, job)
}

type FakeGeocoder struct {
	err   error
	calls int
}

func (g *FakeGeocoder) Process(ctx context.Context, s *domain.Synchronization, log *domain.RunLog) error {
	g.calls++
	return g.err
}

type FakeMetrics struct {
	outcomes []string
	enqueued int
}

func (m *FakeMetrics) ObserveRun(outcome string, elapsed time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

func (m *FakeMetrics) IncEnqueued() { m.enqueued++ }

var errBoom = errors.New("boom")
