package store

import (
	"testing"

	"github.com/plauder-dev/plauder/pkg/api"
)

var freeBot = api.BotConfig{
	Name:       "gemini",
	Model:      "google/gemini-2.5-flash",
	MCPServers: []string{"default"},
}

func TestBotStore_FreeBotMerge(t *testing.T) {
	s := NewBotStore(nil, []api.BotConfig{freeBot})

	bots := s.List("default")
	if len(bots) != 1 || bots[0].Name != "gemini" {
		t.Fatalf("expected merged free bot, got %+v", bots)
	}

	// A namespace bot with the same model suppresses the free entry.
	s.Add("default", api.BotConfig{Name: "mine", Model: freeBot.Model})
	bots = s.List("default")
	if len(bots) != 1 || bots[0].Name != "mine" {
		t.Errorf("free bot should be suppressed by same-model bot, got %+v", bots)
	}
}

func TestBotStore_SeededDefaultsPerNamespace(t *testing.T) {
	s := NewBotStore([]api.BotConfig{{Name: "seeded", Model: "m1"}}, nil)

	if _, err := s.Get("alice", "seeded"); err != nil {
		t.Fatalf("alice missing seeded bot: %v", err)
	}

	// Mutating alice's copy must not affect bob's.
	if err := s.Delete("alice", "seeded"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get("bob", "seeded"); err != nil {
		t.Errorf("bob lost the seeded bot after alice's delete: %v", err)
	}
	if _, err := s.Get("alice", "seeded"); err != ErrNotFound {
		t.Errorf("alice still has deleted bot: %v", err)
	}
}

func TestBotStore_CRUD(t *testing.T) {
	s := NewBotStore(nil, nil)

	bot := api.BotConfig{Name: "claude", Model: "anthropic/claude-sonnet"}
	if err := s.Add("default", bot); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add("default", bot); err != ErrConflict {
		t.Errorf("duplicate Add = %v, want ErrConflict", err)
	}

	bot.MaxTokens = 4096
	if err := s.Update("default", "claude", bot); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := s.Get("default", "claude")
	if err != nil || got.MaxTokens != 4096 {
		t.Errorf("Get after update = %+v, %v", got, err)
	}

	if err := s.Update("default", "ghost", bot); err != ErrNotFound {
		t.Errorf("Update unknown = %v, want ErrNotFound", err)
	}
	if err := s.Delete("default", "ghost"); err != ErrNotFound {
		t.Errorf("Delete unknown = %v, want ErrNotFound", err)
	}
}

func TestToolServerStore_Resolve(t *testing.T) {
	s := NewToolServerStore([]api.ToolServerConfig{
		{Name: "default", URL: "http://localhost:3000/mcp", NeedConfirm: []string{"search"}},
	})

	srv, err := s.GetServer("default", "default")
	if err != nil {
		t.Fatalf("GetServer failed: %v", err)
	}
	if !srv.RequiresConfirmation("search") {
		t.Error("confirmation set lost through store")
	}

	if _, err := s.GetServer("default", "ghost"); err != ErrNotFound {
		t.Errorf("GetServer unknown = %v, want ErrNotFound", err)
	}

	if err := s.Add("default", api.ToolServerConfig{Name: "default"}); err != ErrConflict {
		t.Errorf("duplicate Add = %v, want ErrConflict", err)
	}
	if err := s.Add("default", api.ToolServerConfig{Name: "extra", URL: "http://x"}); err != nil {
		t.Errorf("Add failed: %v", err)
	}
	if got := len(s.List("default")); got != 2 {
		t.Errorf("List length = %d, want 2", got)
	}
}
