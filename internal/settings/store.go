package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/example/hhbot/internal/cache"
)

// Store is the read-through cached view of a Repository. Writes go to the
// repository first and then drop the cached entry.
type Store struct {
	repo  Repository
	cache cache.Cache[Settings]
	group singleflight.Group

	// gen counts saves per chat. A load only fills the cache if no save
	// happened while it was reading.
	mu  sync.Mutex
	gen map[int64]uint64
}

func NewStore(repo Repository, c cache.Cache[Settings]) *Store {
	return &Store{repo: repo, cache: c, gen: make(map[int64]uint64)}
}

func (s *Store) generation(chatID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[chatID]
}

// fill caches st unless the chat was saved after generation g was read.
func (s *Store) fill(ctx context.Context, chatID int64, g uint64, st Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[chatID] != g {
		return
	}
	s.cache.Set(ctx, key(chatID), st)
}

// Get returns the chat's settings. A chat with no stored record gets an
// empty Settings with ChatID set and a nil error.
func (s *Store) Get(ctx context.Context, chatID int64) (Settings, error) {
	if v, ok := s.cache.Get(ctx, key(chatID)); ok {
		return v, nil
	}
	return s.load(ctx, chatID)
}

// Reload bypasses the cache and refreshes it from the repository.
func (s *Store) Reload(ctx context.Context, chatID int64) (Settings, error) {
	s.cache.Delete(ctx, key(chatID))
	return s.load(ctx, chatID)
}

func (s *Store) load(ctx context.Context, chatID int64) (Settings, error) {
	v, err, _ := s.group.Do(key(chatID), func() (any, error) {
		g := s.generation(chatID)
		st, err := s.repo.Get(ctx, chatID)
		if errors.Is(err, ErrNotFound) {
			// nothing to cache; the first save creates the record
			return Settings{ChatID: chatID}, nil
		}
		if err != nil {
			return Settings{}, fmt.Errorf("load settings for chat %d: %w", chatID, err)
		}
		s.fill(ctx, chatID, g, st)
		return st, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return v.(Settings), nil
}

func (s *Store) Save(ctx context.Context, st Settings) error {
	if st.ChatID == 0 {
		return fmt.Errorf("save settings: chat id required")
	}
	if err := s.repo.Save(ctx, st); err != nil {
		return fmt.Errorf("save settings for chat %d: %w", st.ChatID, err)
	}
	s.mu.Lock()
	s.gen[st.ChatID]++
	s.cache.Delete(ctx, key(st.ChatID))
	s.mu.Unlock()
	// later reads must not join a load that started before this save
	s.group.Forget(key(st.ChatID))
	return nil
}

// Update loads the chat's settings, applies fn and saves the result.
func (s *Store) Update(ctx context.Context, chatID int64, fn func(*Settings)) (Settings, error) {
	st, err := s.Reload(ctx, chatID)
	if err != nil {
		return Settings{}, err
	}
	fn(&st)
	st.ChatID = chatID
	if err := s.Save(ctx, st); err != nil {
		return Settings{}, err
	}
	return st, nil
}

func (s *Store) FindResumeOwner(ctx context.Context, resumeID string) (int64, error) {
	return s.repo.FindResumeOwner(ctx, resumeID)
}

func key(chatID int64) string { return strconv.FormatInt(chatID, 10) }
