package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/repository"
)

// Sessions is an in-memory session record log.
type Sessions struct {
	mu      sync.RWMutex
	records []*models.SessionRecord
}

// NewSessions returns an empty log.
func NewSessions() *Sessions {
	return &Sessions{}
}

// Open appends an open record, refusing a second open record per terminal.
func (s *Sessions) Open(_ context.Context, record *models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open(record.TerminalID) != nil {
		return repository.ErrRecordAlreadyOpen
	}
	row := *record
	row.EndTime = nil
	row.ClosedBy = ""
	s.records = append(s.records, &row)
	return nil
}

// CloseOpen closes the terminal's open record; nil, nil when there is none.
func (s *Sessions) CloseOpen(_ context.Context, terminalID string, endTime time.Time, by models.ClosePath) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.open(terminalID)
	if rec == nil {
		return nil, nil
	}
	return closeRecord(rec, endTime, by), nil
}

// CloseByID closes the record if it is still open; nil, nil otherwise.
func (s *Sessions) CloseByID(_ context.Context, id string, endTime time.Time, by models.ClosePath) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID == id && rec.Open() {
			return closeRecord(rec, endTime, by), nil
		}
	}
	return nil, nil
}

// Discard drops a record that is still open.
func (s *Sessions) Discard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.records {
		if rec.ID == id && rec.Open() {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return nil
}

// FindOpen returns the terminal's open record, or nil.
func (s *Sessions) FindOpen(_ context.Context, terminalID string) (*models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec := s.open(terminalID); rec != nil {
		return cloneRecord(rec), nil
	}
	return nil, nil
}

// ListOpen returns every open record, oldest first.
func (s *Sessions) ListOpen(_ context.Context) ([]models.SessionRecord, error) {
	s.mu.RLock()
	var out []models.SessionRecord
	for _, rec := range s.records {
		if rec.Open() {
			out = append(out, *cloneRecord(rec))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// ListByUser returns the last limit records of the user, newest first.
func (s *Sessions) ListByUser(_ context.Context, userID string, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	var out []models.SessionRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, *cloneRecord(rec))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Sessions) open(terminalID string) *models.SessionRecord {
	for _, rec := range s.records {
		if rec.TerminalID == terminalID && rec.Open() {
			return rec
		}
	}
	return nil
}

func closeRecord(rec *models.SessionRecord, endTime time.Time, by models.ClosePath) *models.SessionRecord {
	end := endTime
	rec.EndTime = &end
	rec.ClosedBy = by
	return cloneRecord(rec)
}

func cloneRecord(rec *models.SessionRecord) *models.SessionRecord {
	c := *rec
	if rec.EndTime != nil {
		end := *rec.EndTime
		c.EndTime = &end
	}
	return &c
}
