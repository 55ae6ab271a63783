package storage

import (
	"context"
	"encoding/json"
	"errors"
)

// Snapshot is the combined initial-state payload served to a freshly loaded
// client.
type Snapshot struct {
	Models        []ModelConfig
	Chats         []Chat
	SelectedModel *string
	CurrentChatID *int64
}

// Bootstrap assembles the snapshot: configs and chats most-recently-updated
// first, the selected model name and current chat id from settings.
// Malformed settings values are treated as absent, never as an error; the
// current chat falls back to the most recently updated chat.
func (s *Store) Bootstrap(ctx context.Context) (Snapshot, error) {
	models, err := s.ListModelConfigs(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	chats, err := s.ListChats(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Models: models, Chats: chats}

	if obj, err := s.settingObject(ctx, SettingSelectedModel); err != nil {
		return Snapshot{}, err
	} else if obj != nil {
		if name, ok := obj["name"].(string); ok {
			snap.SelectedModel = &name
		}
	}

	if obj, err := s.settingObject(ctx, SettingCurrentChat); err != nil {
		return Snapshot{}, err
	} else if obj != nil {
		// JSON numbers arrive as float64; only whole values are chat ids.
		if f, ok := obj["id"].(float64); ok && f == float64(int64(f)) {
			id := int64(f)
			snap.CurrentChatID = &id
		}
	}
	if snap.CurrentChatID == nil && len(chats) > 0 {
		snap.CurrentChatID = &chats[0].ID
	}

	return snap, nil
}

// settingObject reads a JSON-object setting, returning nil for missing,
// unparseable, or non-object values.
func (s *Store) settingObject(ctx context.Context, key string) (map[string]any, error) {
	raw, err := s.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, nil
	}
	return obj, nil
}
