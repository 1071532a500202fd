package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/plauder-dev/plauder/pkg/api"
)

// ChatStore holds conversation transcripts keyed by chat id within a
// user namespace. Appends to the same chat are serialized (single
// writer per chat); unrelated chats proceed fully in parallel.
type ChatStore struct {
	mu    sync.Mutex
	chats map[string]map[string]*chatEntry // namespace -> chat id -> entry
}

// chatEntry guards one chat. entryMu serializes mutations and the turn
// flag; the store-level mutex only protects the maps.
type chatEntry struct {
	mu         sync.Mutex
	turnActive bool
	chat       api.Chat
}

// NewChatStore creates an empty chat store.
func NewChatStore() *ChatStore {
	return &ChatStore{chats: make(map[string]map[string]*chatEntry)}
}

// ListOptions controls filtering and pagination for chat listing.
type ListOptions struct {
	Search string // Substring match over message text (case-insensitive).
	Page   int    // 1-based page number (default 1).
	Limit  int    // Page size (default 10).
}

// ListResult holds one page of chats plus the total match count.
type ListResult struct {
	Chats []api.Chat `json:"chats"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

// entry returns the chatEntry for (namespace, id), creating it when
// create is set.
func (s *ChatStore) entry(namespace, id string, create bool) *chatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.chats[namespace]
	if !ok {
		if !create {
			return nil
		}
		ns = make(map[string]*chatEntry)
		s.chats[namespace] = ns
	}

	e, ok := ns[id]
	if !ok {
		if !create {
			return nil
		}
		now := time.Now()
		e = &chatEntry{chat: api.Chat{ID: id, CreatedAt: now, UpdatedAt: now}}
		ns[id] = e
	}
	return e
}

// Get returns a copy of the chat, or ErrNotFound.
func (s *ChatStore) Get(namespace, id string) (api.Chat, error) {
	e := s.entry(namespace, id, false)
	if e == nil {
		return api.Chat{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyChat(e.chat), nil
}

// GetOrCreate returns a copy of the chat, creating an empty one when
// the id is not yet known in the namespace.
func (s *ChatStore) GetOrCreate(namespace, id string) (api.Chat, error) {
	e := s.entry(namespace, id, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyChat(e.chat), nil
}

// Append atomically appends messages to the chat, creating it when
// absent, and refreshes UpdatedAt. Either all messages are appended or
// none. Returns a copy of the updated chat.
func (s *ChatStore) Append(namespace, id string, msgs ...api.Message) (api.Chat, error) {
	e := s.entry(namespace, id, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.chat.Messages = append(e.chat.Messages, msgs...)
	e.chat.UpdatedAt = laterOf(e.chat.UpdatedAt, time.Now())
	return copyChat(e.chat), nil
}

// Save stores a full chat snapshot, assigning an id when the chat has
// none. Used by administrative callers; the engine only appends.
func (s *ChatStore) Save(namespace string, chat api.Chat) (api.Chat, error) {
	if chat.ID == "" {
		chat.ID = api.NewChatID()
	}
	e := s.entry(namespace, chat.ID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = e.chat.CreatedAt
	}
	chat.UpdatedAt = laterOf(e.chat.UpdatedAt, time.Now())
	e.chat = copyChat(chat)
	return copyChat(e.chat), nil
}

// List returns a page of the namespace's chats, most recently updated
// first, optionally filtered by a substring match over message text.
func (s *ChatStore) List(namespace string, opts ListOptions) (*ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 10
	}

	s.mu.Lock()
	ns := s.chats[namespace]
	entries := make([]*chatEntry, 0, len(ns))
	for _, e := range ns {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	search := strings.ToLower(opts.Search)
	var matches []api.Chat
	for _, e := range entries {
		e.mu.Lock()
		if search == "" || chatMatches(e.chat, search) {
			matches = append(matches, copyChat(e.chat))
		}
		e.mu.Unlock()
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].ID < matches[j].ID
	})

	total := len(matches)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	result := &ListResult{
		Chats: matches[start:end],
		Total: total,
		Page:  page,
		Limit: limit,
	}
	if result.Chats == nil {
		result.Chats = []api.Chat{}
	}
	return result, nil
}

// BeginTurn claims the chat's turn slot, creating the chat when absent.
// Returns ErrTurnActive when another turn holds it. The claim does not
// block other readers or the confirmation endpoint; it only rejects a
// second concurrent turn on the same chat id.
func (s *ChatStore) BeginTurn(namespace, id string) error {
	e := s.entry(namespace, id, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.turnActive {
		return ErrTurnActive
	}
	e.turnActive = true
	return nil
}

// EndTurn releases the chat's turn slot.
func (s *ChatStore) EndTurn(namespace, id string) {
	e := s.entry(namespace, id, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.turnActive = false
	e.mu.Unlock()
}

// chatMatches reports whether any message text contains the lowercased
// search term.
func chatMatches(chat api.Chat, search string) bool {
	for _, msg := range chat.Messages {
		if strings.Contains(strings.ToLower(msg.Content.Plain()), search) {
			return true
		}
	}
	return false
}

// copyChat duplicates the message slice so callers cannot mutate the
// stored transcript.
func copyChat(c api.Chat) api.Chat {
	out := c
	out.Messages = make([]api.Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// laterOf keeps UpdatedAt monotonically non-decreasing even when the
// wall clock steps backwards.
func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
