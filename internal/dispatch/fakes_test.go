package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
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

// memoryAttemptStore mirrors the Postgres store, including the partial unique
// index on successful deliveries.
type memoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]Attempt
	order    []uuid.UUID

	// failUpdates makes the next n UpdateOutcome calls fail.
	failUpdates int
}

func newMemoryAttemptStore() *memoryAttemptStore {
	return &memoryAttemptStore{attempts: make(map[uuid.UUID]Attempt)}
}

func (s *memoryAttemptStore) HasSuccess(_ context.Context, leadID uuid.UUID, trigger Trigger, destinationID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successExists(leadID, trigger, destinationID, uuid.Nil), nil
}

func (s *memoryAttemptStore) successExists(leadID uuid.UUID, trigger Trigger, destinationID, except uuid.UUID) bool {
	for id, a := range s.attempts {
		if id != except && a.Status == StatusSuccess && a.LeadID == leadID && a.Trigger == trigger && a.DestinationID == destinationID {
			return true
		}
	}
	return false
}

func (s *memoryAttemptStore) Insert(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.ID] = a
	s.order = append(s.order, a.ID)
	return nil
}

func (s *memoryAttemptStore) UpdateOutcome(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; !ok {
		return ErrAttemptNotFound
	}
	if s.failUpdates > 0 {
		s.failUpdates--
		return errors.New("connection reset")
	}
	if a.Status == StatusSuccess && s.successExists(a.LeadID, a.Trigger, a.DestinationID, a.ID) {
		return ErrAlreadyDelivered
	}
	s.attempts[a.ID] = a
	return nil
}

func (s *memoryAttemptStore) ClaimForRetry(_ context.Context, id uuid.UUID, expectedAttemptNo int, now, staleBefore time.Time) (Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, false, ErrAttemptNotFound
	}
	claimable := a.Status == StatusRetrying || a.Status == StatusFailed || isStalePending(a, staleBefore)
	if a.AttemptNo != expectedAttemptNo || !claimable {
		return Attempt{}, false, nil
	}
	a = claim(a, now)
	s.attempts[id] = a
	return a, true, nil
}

func (s *memoryAttemptStore) ClaimDue(_ context.Context, now, staleBefore time.Time, limit, maxAttempts int) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []Attempt
	for _, id := range s.order {
		if len(claimed) >= limit {
			break
		}
		a := s.attempts[id]
		if a.AttemptNo >= maxAttempts {
			continue
		}
		due := a.Status == StatusRetrying && a.NextRetryAt != nil && !a.NextRetryAt.After(now)
		if !due && !isStalePending(a, staleBefore) {
			continue
		}
		a = claim(a, now)
		s.attempts[id] = a
		claimed = append(claimed, a)
	}
	return claimed, nil
}

func (s *memoryAttemptStore) FailAbandoned(_ context.Context, now, staleBefore time.Time, maxAttempts int, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, a := range s.attempts {
		if a.AttemptNo < maxAttempts || !isStalePending(a, staleBefore) {
			continue
		}
		msg := message
		a.Status = StatusFailed
		a.ErrorMessage = &msg
		a.UpdatedAt = now
		s.attempts[id] = a
		n++
	}
	return n, nil
}

func isStalePending(a Attempt, staleBefore time.Time) bool {
	return a.Status == StatusPending && !a.UpdatedAt.After(staleBefore)
}

func claim(a Attempt, now time.Time) Attempt {
	a.AttemptNo++
	a.Status = StatusPending
	a.NextRetryAt = nil
	a.UpdatedAt = now
	return a
}

func (s *memoryAttemptStore) failNextUpdates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates = n
}

func (s *memoryAttemptStore) put(a Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.attempts[a.ID] = a
}

func (s *memoryAttemptStore) GetByID(_ context.Context, id uuid.UUID) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (s *memoryAttemptStore) ListByLead(_ context.Context, leadID uuid.UUID) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Attempt
	for _, id := range s.order {
		if a := s.attempts[id]; a.LeadID == leadID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryAttemptStore) all() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attempt, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.attempts[id])
	}
	return out
}

type memoryDestinationStore struct {
	actions []IntentionAction
	err     error
}

func (s *memoryDestinationStore) FindEnabledAction(_ context.Context, campaignID uuid.UUID, intention IntentionType) (IntentionAction, bool, error) {
	if s.err != nil {
		return IntentionAction{}, false, s.err
	}
	for _, a := range s.actions {
		if a.CampaignID == campaignID && a.IntentionType == intention && a.Enabled {
			return a, true, nil
		}
	}
	return IntentionAction{}, false, nil
}

// stubCaller returns queued responses in order and records requests.
type stubCaller struct {
	mu        sync.Mutex
	responses []stubResponse
	requests  []Request
}

type stubResponse struct {
	status int
	body   string
	err    error
}

func (c *stubCaller) Call(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if _, ok := ctx.Deadline(); !ok {
		return Response{}, errors.New("call without deadline")
	}
	if len(c.responses) == 0 {
		return Response{Status: 200}, nil
	}
	next := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	if next.err != nil {
		return Response{}, next.err
	}
	return Response{Status: next.status, Body: next.body}, nil
}

func (c *stubCaller) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type stubAppender struct {
	rows [][]any
	err  error
}

func (a *stubAppender) AppendRow(_ context.Context, spreadsheetID, sheetName string, row []any) error {
	if a.err != nil {
		return a.err
	}
	a.rows = append(a.rows, row)
	return nil
}
