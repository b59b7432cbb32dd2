package stitcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const findLeadQuery = `
SELECT id, dealer_id, phone, created_on
FROM leads
WHERE phone = $1
  AND ($2 = '' OR dealer_id = $2)
  AND created_on > $3
ORDER BY created_on DESC
LIMIT 1`

// PostgresLeads looks up leads in the CRM's Postgres database.
type PostgresLeads struct {
	pool *pgxpool.Pool
}

func NewPostgresLeads(ctx context.Context, dsn string) (*PostgresLeads, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("lead db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("lead db ping: %w", err)
	}
	return &PostgresLeads{pool: pool}, nil
}

func (p *PostgresLeads) Find(ctx context.Context, customerNumber, dealerID string, since time.Time) (*Lead, error) {
	var lead Lead
	err := p.pool.QueryRow(ctx, findLeadQuery, customerNumber, dealerID, since).
		Scan(&lead.ID, &lead.DealerID, &lead.Phone, &lead.CreatedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lead query: %w", err)
	}
	return &lead, nil
}

func (p *PostgresLeads) Close() {
	p.pool.Close()
}
