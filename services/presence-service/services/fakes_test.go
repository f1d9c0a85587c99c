package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chorus/services/presence-service/db"
	"chorus/services/presence-service/models"
)

type memPresenceStore struct {
	mu      sync.Mutex
	records map[string]models.PresenceRecord
	err     error

	// beforeSetOnline runs ahead of every SetOnline, outside the lock.
	beforeSetOnline func(userID string)
}

func newMemPresenceStore() *memPresenceStore {
	return &memPresenceStore{records: make(map[string]models.PresenceRecord)}
}

func (s *memPresenceStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *memPresenceStore) SetOnline(_ context.Context, userID string, at time.Time) error {
	if hook := s.beforeSetOnline; hook != nil {
		hook(userID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records[userID] = models.PresenceRecord{UserID: userID, IsOnline: true, LastActiveAt: at}
	return nil
}

func (s *memPresenceStore) SetOffline(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records[userID] = models.PresenceRecord{UserID: userID, IsOnline: false, LastActiveAt: at}
	return nil
}

func (s *memPresenceStore) Get(_ context.Context, userID string) (models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.PresenceRecord{}, s.err
	}
	rec, ok := s.records[userID]
	if !ok {
		return models.PresenceRecord{UserID: userID}, nil
	}
	return rec, nil
}

func (s *memPresenceStore) OnlineUsers(_ context.Context) ([]models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.PresenceRecord
	for _, rec := range s.records {
		if rec.IsOnline {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memPresenceStore) ExpireInactive(_ context.Context, cutoff time.Time, exclude []string) ([]models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	skip := make(map[string]bool)
	for _, id := range exclude {
		skip[id] = true
	}
	var out []models.PresenceRecord
	for id, rec := range s.records {
		if !rec.IsOnline || skip[id] || !rec.LastActiveAt.Before(cutoff) {
			continue
		}
		rec.IsOnline = false
		s.records[id] = rec
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memPresenceStore) onlineIDs() []string {
	recs, _ := s.OnlineUsers(context.Background())
	ids := []string{}
	for _, r := range recs {
		ids = append(ids, r.UserID)
	}
	return ids
}

type memMessageStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]models.Message
	order    []uuid.UUID
	err      error
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{messages: make(map[uuid.UUID]models.Message)}
}

func (s *memMessageStore) Create(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages[msg.ID] = *msg
	s.order = append(s.order, msg.ID)
	return nil
}

func (s *memMessageStore) Get(_ context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, db.ErrMessageNotFound
	}
	return &msg, nil
}

func (s *memMessageStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, ok := s.messages[id]; !ok {
		return db.ErrMessageNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *memMessageStore) Conversation(_ context.Context, a, b string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Message
	for _, id := range s.order {
		msg, ok := s.messages[id]
		if !ok {
			continue
		}
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			out = append(out, msg)
		}
	}
	return out, nil
}
