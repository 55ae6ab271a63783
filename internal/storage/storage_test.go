package storage

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"viperd/internal/secrets"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "viper_test.db")
	s, err := Open(ctx, "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(v string) *string { return &v }

func TestTimestampFormat(t *testing.T) {
	ts := time.Date(2026, 8, 28, 10, 30, 45, 123456789, time.UTC)
	got := FormatTimestamp(ts)
	if got != "2026-08-28T10:30:45Z" {
		t.Fatalf("unexpected timestamp %q", got)
	}
	if !strings.HasSuffix(got, "Z") {
		t.Fatalf("timestamp must end in Z: %q", got)
	}

	parsed, err := ParseTimestamp("2026-08-28T12:30:45.500+02:00")
	if err != nil {
		t.Fatalf("parse timestamp: %v", err)
	}
	if parsed.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", parsed.Location())
	}
	if parsed.Hour() != 10 {
		t.Fatalf("expected 10h UTC, got %d", parsed.Hour())
	}
}

func TestCreateChatStampsUTCSeconds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateChat(ctx, "first chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("expected assigned chat id")
	}
	if c.UpdatedAt.Nanosecond() != 0 {
		t.Fatalf("expected whole-second timestamp, got %v", c.UpdatedAt)
	}
	if got := FormatTimestamp(c.UpdatedAt); !strings.HasSuffix(got, "Z") {
		t.Fatalf("timestamp must serialize with Z suffix: %q", got)
	}

	back, err := s.GetChat(ctx, c.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if !back.CreatedAt.Equal(c.CreatedAt) {
		t.Fatalf("created_at mismatch: %v vs %v", back.CreatedAt, c.CreatedAt)
	}
}

func TestPatchChatTitleRefreshesUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateChat(ctx, "old title")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if err := s.AppendMessage(ctx, Message{
		ID: "m1", ChatID: c.ID, Role: "user", Content: "hi",
		CreatedAt: UTCNow(), Status: "complete",
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	// Backdate so the refresh is observable within one second.
	backdate(t, s, c.ID, UTCNow().Add(-time.Hour))

	if err := s.PatchChat(ctx, c.ID, strPtr("X")); err != nil {
		t.Fatalf("patch chat: %v", err)
	}
	got, err := s.GetChat(ctx, c.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if got.Title != "X" {
		t.Fatalf("expected title X, got %q", got.Title)
	}
	if got.UpdatedAt.Before(UTCNow().Add(-time.Minute)) {
		t.Fatalf("updated_at not refreshed: %v", got.UpdatedAt)
	}

	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("message rows must be untouched, got %+v", msgs)
	}
}

func TestPatchMissingChat(t *testing.T) {
	s := newTestStore(t)
	if err := s.PatchChat(context.Background(), 999, strPtr("X")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteChatCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateChat(ctx, "doomed")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	for _, id := range []string{"m1", "m2"} {
		if err := s.AppendMessage(ctx, Message{
			ID: id, ChatID: c.ID, Role: "user", Content: "x",
			CreatedAt: UTCNow(), Status: "complete",
		}); err != nil {
			t.Fatalf("append message %s: %v", id, err)
		}
	}

	if err := s.DeleteChat(ctx, c.ID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}
	if _, err := s.GetChat(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected chat gone, got %v", err)
	}
	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected cascade delete, %d messages remain", len(msgs))
	}

	// Idempotent: a second delete still succeeds.
	if err := s.DeleteChat(ctx, c.ID); err != nil {
		t.Fatalf("repeat delete chat: %v", err)
	}
}

func TestMessagesOrderedByCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateChat(ctx, "ordering")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"late", "early", "middle"} {
		off := []time.Duration{2 * time.Minute, 0, time.Minute}[i]
		if err := s.AppendMessage(ctx, Message{
			ID: id, ChatID: c.ID, Role: "user", Content: id,
			CreatedAt: base.Add(off), Status: "complete",
		}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	want := []string{"early", "middle", "late"}
	for i, w := range want {
		if msgs[i].ID != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, msgs[i].ID)
		}
	}
}

func TestAppendMessageMissingChat(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendMessage(context.Background(), Message{
		ID: "m1", ChatID: 42, Role: "user", Content: "x",
		CreatedAt: UTCNow(), Status: "complete",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPatchMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateChat(ctx, "chat")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if err := s.AppendMessage(ctx, Message{
		ID: "m1", ChatID: c.ID, Role: "assistant", Content: "",
		CreatedAt: UTCNow(), Status: "pending",
	}); err != nil {
		t.Fatalf("append message: %v", err)
	}

	if err := s.PatchMessage(ctx, c.ID, "m1", MessagePatch{
		Content: strPtr("done"),
		Status:  strPtr("complete"),
	}); err != nil {
		t.Fatalf("patch message: %v", err)
	}
	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if msgs[0].Content != "done" || msgs[0].Status != "complete" {
		t.Fatalf("patch not applied: %+v", msgs[0])
	}
	if msgs[0].Error != "" {
		t.Fatalf("error field must stay empty, got %q", msgs[0].Error)
	}

	if err := s.PatchMessage(ctx, c.ID, "missing", MessagePatch{Status: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertMessageInsertsAndUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateChat(ctx, "stream")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	m := Message{
		ID: "assistant-1", ChatID: c.ID, Role: "assistant", Content: "partial",
		CreatedAt: UTCNow(), Status: "pending",
	}
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatalf("upsert insert: %v", err)
	}
	m.Content = "Hello"
	m.Status = "complete"
	if err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected single row, got %d", len(msgs))
	}
	if msgs[0].Content != "Hello" || msgs[0].Status != "complete" {
		t.Fatalf("upsert not applied: %+v", msgs[0])
	}
}

func TestModelConfigNameUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mc := ModelConfig{Name: "deepseek", APIBaseURL: "https://api.deepseek.com", Type: "openai"}
	if _, err := s.CreateModelConfig(ctx, mc); err != nil {
		t.Fatalf("create model config: %v", err)
	}
	if _, err := s.CreateModelConfig(ctx, mc); err == nil {
		t.Fatal("expected duplicate name to fail")
	}
}

func TestModelConfigPatchSemantics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateModelConfig(ctx, ModelConfig{
		Name:       "local",
		APIBaseURL: "http://localhost:11434",
		Type:       "openai",
		APIKey:     strPtr("sk-old"),
	})
	if err != nil {
		t.Fatalf("create model config: %v", err)
	}
	if created.Source != "custom" {
		t.Fatalf("source must default to custom, got %q", created.Source)
	}

	temp := 0.2
	patched, err := s.PatchModelConfigByID(ctx, created.ID, ModelConfigPatch{Temperature: &temp})
	if err != nil {
		t.Fatalf("patch model config: %v", err)
	}
	if patched.Temperature == nil || *patched.Temperature != 0.2 {
		t.Fatalf("temperature not applied: %+v", patched.Temperature)
	}
	if patched.APIKey == nil || *patched.APIKey != "sk-old" {
		t.Fatalf("absent fields must be untouched, api key = %+v", patched.APIKey)
	}
	if patched.APIBaseURL != "http://localhost:11434" {
		t.Fatalf("base url must be untouched, got %q", patched.APIBaseURL)
	}

	if _, err := s.PatchModelConfigByName(ctx, "nope", ModelConfigPatch{Temperature: &temp}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Rename through the by-name path must return the renamed row.
	renamed, err := s.PatchModelConfigByName(ctx, "local", ModelConfigPatch{Name: strPtr("local2")})
	if err != nil {
		t.Fatalf("rename model config: %v", err)
	}
	if renamed.Name != "local2" {
		t.Fatalf("expected renamed config, got %q", renamed.Name)
	}
}

func TestModelConfigDeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.DeleteModelConfigByID(ctx, 12345); err != nil {
		t.Fatalf("delete missing config must be a no-op, got %v", err)
	}
	if err := s.DeleteModelConfigByName(ctx, "ghost"); err != nil {
		t.Fatalf("delete missing config by name must be a no-op, got %v", err)
	}
}

func TestModelConfigAPIKeySealedAtRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kr, err := secrets.NewKeyring("k1", map[string][]byte{"k1": bytes.Repeat([]byte{0x33}, 32)})
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	s.UseKeyring(kr)

	created, err := s.CreateModelConfig(ctx, ModelConfig{
		Name:       "sealed",
		APIBaseURL: "https://api.example.com",
		Type:       "openai",
		APIKey:     strPtr("sk-plain"),
	})
	if err != nil {
		t.Fatalf("create model config: %v", err)
	}

	var raw string
	if err := s.DB().QueryRowContext(ctx, "SELECT api_key FROM model_configs WHERE id = ?", created.ID).Scan(&raw); err != nil {
		t.Fatalf("read raw api key: %v", err)
	}
	if !secrets.IsSealed(raw) {
		t.Fatalf("api key stored in the clear: %q", raw)
	}

	back, err := s.GetModelConfigByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get model config: %v", err)
	}
	if back.APIKey == nil || *back.APIKey != "sk-plain" {
		t.Fatalf("expected opened api key, got %+v", back.APIKey)
	}
}

func TestSettingsUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetSetting(ctx, SettingSelectedModel, `{"name":"a"}`); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := s.SetSetting(ctx, SettingSelectedModel, `{"name":"b"}`); err != nil {
		t.Fatalf("overwrite setting: %v", err)
	}
	v, err := s.GetSetting(ctx, SettingSelectedModel)
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if v != `{"name":"b"}` {
		t.Fatalf("expected overwritten value, got %q", v)
	}
}

// backdate pushes a chat's updated_at into the past so ordering and refresh
// behavior can be asserted without sleeping.
func backdate(t *testing.T, s *Store, chatID int64, to time.Time) {
	t.Helper()
	if _, err := s.DB().Exec("UPDATE chats SET updated_at = ? WHERE id = ?", to.UTC(), chatID); err != nil {
		t.Fatalf("backdate chat %d: %v", chatID, err)
	}
}
