package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/adeilh/go-rakh-weather/template"
)

// TemplateRepository stores request templates so operators can change a
// provider URL without redeploying. Templates are read once at startup.
type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Load returns every stored definition ordered by name. A NULL placeholder
// list leaves discovery to the registry.
func (r *TemplateRepository) Load(ctx context.Context) ([]template.Definition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, body, placeholders FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load templates: %w", err)
	}
	defer rows.Close()

	var defs []template.Definition
	for rows.Next() {
		var (
			def          template.Definition
			placeholders pq.StringArray
		)
		if err := rows.Scan(&def.Name, &def.Body, &placeholders); err != nil {
			return nil, fmt.Errorf("postgres: scan template: %w", err)
		}
		if placeholders != nil {
			def.Placeholders = []string(placeholders)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load templates: %w", err)
	}
	return defs, nil
}

// Upsert inserts or replaces a definition.
func (r *TemplateRepository) Upsert(ctx context.Context, def template.Definition) error {
	var placeholders any
	if def.Placeholders != nil {
		placeholders = pq.StringArray(def.Placeholders)
	}
	const query = `INSERT INTO templates (name, body, placeholders) VALUES ($1, $2, $3)
                   ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, placeholders = EXCLUDED.placeholders`
	if _, err := r.db.ExecContext(ctx, query, def.Name, def.Body, placeholders); err != nil {
		return fmt.Errorf("postgres: upsert template %q: %w", def.Name, err)
	}
	return nil
}
