package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches the generated tsvector on cards.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const pgftsWhere = `c.board_id = $1 AND c.fts @@ plainto_tsquery('english', $2)`

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM cards c WHERE `+pgftsWhere,
		q.BoardID, q.Text,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.column_id, c.title,
			ts_headline('english', coalesce(c.description, ''), plainto_tsquery('english', $2),
				'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>')
		FROM cards c
		WHERE `+pgftsWhere+`
		ORDER BY ts_rank(c.fts, plainto_tsquery('english', $2)) DESC, c.id
		LIMIT $3 OFFSET $4`,
		q.BoardID, q.Text, q.limit(), q.offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.CardID, &r.ColumnID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every card for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CardRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.board_id, c.column_id, c.title, c.description, c.priority,
			coalesce(string_agg(cl.label_id, ',' ORDER BY cl.label_id), '')
		FROM cards c
		LEFT JOIN card_labels cl ON cl.card_id = c.id
		GROUP BY c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	defer rows.Close()

	records := make([]CardRecord, 0)
	for rows.Next() {
		var r CardRecord
		var labels string
		if err := rows.Scan(&r.ID, &r.BoardID, &r.ColumnID, &r.Title, &r.Description, &r.Priority, &labels); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		r.Labels = []string{}
		if labels != "" {
			r.Labels = strings.Split(labels, ",")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return records, nil
}
