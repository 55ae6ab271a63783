package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const modelConfigColumns = "id, name, api_base_url, type, model_id, api_key, headers, temperature, max_tokens, source, created_at, updated_at"

func (s *Store) CreateModelConfig(ctx context.Context, mc ModelConfig) (ModelConfig, error) {
	if mc.Source == "" {
		mc.Source = "custom"
	}
	now := UTCNow()
	mc.CreatedAt = now
	mc.UpdatedAt = now

	apiKey, err := s.sealAPIKey(mc.APIKey)
	if err != nil {
		return ModelConfig{}, err
	}

	q := s.sql.Insert("model_configs").
		Columns("name", "api_base_url", "type", "model_id", "api_key", "headers", "temperature", "max_tokens", "source", "created_at", "updated_at").
		Values(mc.Name, mc.APIBaseURL, mc.Type, mc.ModelID, apiKey, mc.Headers, mc.Temperature, mc.MaxTokens, mc.Source, now, now).
		Suffix("RETURNING id")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ModelConfig{}, fmt.Errorf("build create model config query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&mc.ID); err != nil {
		return ModelConfig{}, fmt.Errorf("create model config: %w", err)
	}
	return mc, nil
}

func (s *Store) GetModelConfigByID(ctx context.Context, id int64) (ModelConfig, error) {
	return s.getModelConfig(ctx, sq.Eq{"id": id})
}

func (s *Store) GetModelConfigByName(ctx context.Context, name string) (ModelConfig, error) {
	return s.getModelConfig(ctx, sq.Eq{"name": name})
}

func (s *Store) ListModelConfigs(ctx context.Context) ([]ModelConfig, error) {
	q := s.sql.Select(modelConfigColumns).
		From("model_configs").
		OrderBy("updated_at DESC", "id DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list model configs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list model configs: %w", err)
	}
	defer rows.Close()

	out := make([]ModelConfig, 0)
	for rows.Next() {
		mc, err := scanModelConfig(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan model config row: %w", err)
		}
		if mc.APIKey, err = s.openAPIKey(mc.APIKey); err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate model config rows: %w", err)
	}
	return out, nil
}

func (s *Store) PatchModelConfigByID(ctx context.Context, id int64, p ModelConfigPatch) (ModelConfig, error) {
	return s.patchModelConfig(ctx, sq.Eq{"id": id}, p)
}

func (s *Store) PatchModelConfigByName(ctx context.Context, name string, p ModelConfigPatch) (ModelConfig, error) {
	return s.patchModelConfig(ctx, sq.Eq{"name": name}, p)
}

// DeleteModelConfigByID is a no-op when the config does not exist.
func (s *Store) DeleteModelConfigByID(ctx context.Context, id int64) error {
	return s.deleteModelConfig(ctx, sq.Eq{"id": id})
}

func (s *Store) DeleteModelConfigByName(ctx context.Context, name string) error {
	return s.deleteModelConfig(ctx, sq.Eq{"name": name})
}

func (s *Store) getModelConfig(ctx context.Context, where sq.Eq) (ModelConfig, error) {
	q := s.sql.Select(modelConfigColumns).From("model_configs").Where(where)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ModelConfig{}, fmt.Errorf("build get model config query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, sqlStr, args...)
	mc, err := scanModelConfig(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ModelConfig{}, ErrNotFound
		}
		return ModelConfig{}, fmt.Errorf("get model config: %w", err)
	}
	if mc.APIKey, err = s.openAPIKey(mc.APIKey); err != nil {
		return ModelConfig{}, err
	}
	return mc, nil
}

func (s *Store) patchModelConfig(ctx context.Context, where sq.Eq, p ModelConfigPatch) (ModelConfig, error) {
	q := s.sql.Update("model_configs").
		Set("updated_at", UTCNow()).
		Where(where)
	if p.Name != nil {
		q = q.Set("name", *p.Name)
	}
	if p.APIBaseURL != nil {
		q = q.Set("api_base_url", *p.APIBaseURL)
	}
	if p.Type != nil {
		q = q.Set("type", *p.Type)
	}
	if p.ModelID != nil {
		q = q.Set("model_id", *p.ModelID)
	}
	if p.APIKey != nil {
		sealed, err := s.sealAPIKey(p.APIKey)
		if err != nil {
			return ModelConfig{}, err
		}
		q = q.Set("api_key", sealed)
	}
	if p.Headers != nil {
		q = q.Set("headers", *p.Headers)
	}
	if p.Temperature != nil {
		q = q.Set("temperature", *p.Temperature)
	}
	if p.MaxTokens != nil {
		q = q.Set("max_tokens", *p.MaxTokens)
	}
	if p.Source != nil {
		q = q.Set("source", *p.Source)
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ModelConfig{}, fmt.Errorf("build patch model config query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return ModelConfig{}, fmt.Errorf("patch model config: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ModelConfig{}, ErrNotFound
	}

	// Renames move the row out from under a by-name predicate.
	if p.Name != nil {
		if _, byName := where["name"]; byName {
			where = sq.Eq{"name": *p.Name}
		}
	}
	return s.getModelConfig(ctx, where)
}

func (s *Store) deleteModelConfig(ctx context.Context, where sq.Eq) error {
	q := s.sql.Delete("model_configs").Where(where)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete model config query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete model config: %w", err)
	}
	return nil
}

func scanModelConfig(scan func(dest ...any) error) (ModelConfig, error) {
	var (
		mc          ModelConfig
		modelID     sql.NullString
		apiKey      sql.NullString
		headers     sql.NullString
		temperature sql.NullFloat64
		maxTokens   sql.NullInt64
	)
	if err := scan(
		&mc.ID,
		&mc.Name,
		&mc.APIBaseURL,
		&mc.Type,
		&modelID,
		&apiKey,
		&headers,
		&temperature,
		&maxTokens,
		&mc.Source,
		&mc.CreatedAt,
		&mc.UpdatedAt,
	); err != nil {
		return ModelConfig{}, err
	}
	if modelID.Valid {
		mc.ModelID = &modelID.String
	}
	if apiKey.Valid {
		mc.APIKey = &apiKey.String
	}
	if headers.Valid {
		mc.Headers = &headers.String
	}
	if temperature.Valid {
		mc.Temperature = &temperature.Float64
	}
	if maxTokens.Valid {
		mc.MaxTokens = &maxTokens.Int64
	}
	return mc, nil
}

func (s *Store) sealAPIKey(key *string) (*string, error) {
	if s.keyring == nil || key == nil {
		return key, nil
	}
	sealed, err := s.keyring.Seal(*key)
	if err != nil {
		return nil, fmt.Errorf("seal api key: %w", err)
	}
	return &sealed, nil
}

func (s *Store) openAPIKey(key *string) (*string, error) {
	if s.keyring == nil || key == nil {
		return key, nil
	}
	plain, err := s.keyring.Open(*key)
	if err != nil {
		return nil, fmt.Errorf("open api key: %w", err)
	}
	return &plain, nil
}
