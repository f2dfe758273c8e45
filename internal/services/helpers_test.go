package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/benmeehan/action-verifier/internal/models"
	"github.com/benmeehan/action-verifier/internal/store"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	onSleep func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	n, hook := c.sleeps, c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// recordingStore counts inserts and reads on top of a real store.
type recordingStore struct {
	store.Store
	mu        sync.Mutex
	inserted  []string
	reads     int
	insertErr error
}

func (s *recordingStore) InsertCommand(ctx context.Context, cmd *models.Command) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if err := s.Store.InsertCommand(ctx, cmd); err != nil {
		return err
	}
	s.mu.Lock()
	s.inserted = append(s.inserted, cmd.ID)
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) GetCommand(ctx context.Context, id string) (models.Command, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.Store.GetCommand(ctx, id)
}

func (s *recordingStore) lastID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inserted) == 0 {
		return ""
	}
	return s.inserted[len(s.inserted)-1]
}
