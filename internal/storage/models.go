package storage

import "time"

type ModelConfig struct {
	ID          int64
	Name        string
	APIBaseURL  string
	Type        string
	ModelID     *string
	APIKey      *string
	Headers     *string // JSON object serialized to text
	Temperature *float64
	MaxTokens   *int64
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ModelConfigPatch applies only its non-nil fields.
type ModelConfigPatch struct {
	Name        *string
	APIBaseURL  *string
	Type        *string
	ModelID     *string
	APIKey      *string
	Headers     *string
	Temperature *float64
	MaxTokens   *int64
	Source      *string
}

type Chat struct {
	ID        int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID        string // caller-supplied, e.g. a client-generated UUID
	ChatID    int64
	Role      string
	Content   string
	CreatedAt time.Time
	Status    string
	Error     string
}

type MessagePatch struct {
	Content *string
	Status  *string
	Error   *string
}

// UTCNow is the single write-side clock: UTC, whole seconds.
func UTCNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// FormatTimestamp renders a timestamp the way the wire format expects:
// UTC ISO-8601 with a literal Z and no sub-second precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// ParseTimestamp accepts ISO-8601 with or without sub-second precision and
// normalizes to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
