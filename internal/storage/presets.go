package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// PresetRepository stores user presets in Postgres. It satisfies the
// preset store's persistence interface.
type PresetRepository struct {
	client *PostgresClient
}

func NewPresetRepository(client *PostgresClient) *PresetRepository {
	return &PresetRepository{client: client}
}

// Load returns every stored preset document keyed by name.
func (r *PresetRepository) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	docs := make(map[string]json.RawMessage, len(records))
	for _, rec := range records {
		docs[rec.Name] = rec.Document
	}
	return docs, nil
}

// List returns all rows ordered by name.
func (r *PresetRepository) List(ctx context.Context) ([]PresetRecord, error) {
	rows, err := r.client.pool.Query(ctx, `
		SELECT name, document::text, created_at, updated_at
		FROM odrive_presets
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query presets: %w", err)
	}
	defer rows.Close()

	var records []PresetRecord
	for rows.Next() {
		var rec PresetRecord
		var doc string
		if err := rows.Scan(&rec.Name, &doc, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		rec.Document = json.RawMessage(doc)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}
	return records, nil
}

// Put inserts or replaces the document stored under name.
func (r *PresetRepository) Put(ctx context.Context, name string, doc json.RawMessage) error {
	_, err := r.client.pool.Exec(ctx, `
		INSERT INTO odrive_presets (name, document)
		VALUES ($1, $2::json)
		ON CONFLICT (name) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = NOW()
	`, name, string(doc))
	if err != nil {
		return fmt.Errorf("failed to save preset %q: %w", name, err)
	}
	return nil
}

func (r *PresetRepository) Delete(ctx context.Context, name string) error {
	_, err := r.client.pool.Exec(ctx, `DELETE FROM odrive_presets WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete preset %q: %w", name, err)
	}
	return nil
}
