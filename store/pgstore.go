package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/model"
)

// PgRequestStore is a PostgreSQL-backed RequestStore using pgx/v5. The
// payload and history travel as jsonb columns; the version column carries the
// optimistic lock.
type PgRequestStore struct {
	pool *pgxpool.Pool
}

// NewPgRequestStore creates a new PostgreSQL request store.
func NewPgRequestStore(pool *pgxpool.Pool) *PgRequestStore {
	return &PgRequestStore{pool: pool}
}

// Create inserts a new request.
func (s *PgRequestStore) Create(ctx context.Context, req *model.RequestInstance) error {
	payloadJSON, historyJSON, err := marshalRequest(req)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO requests (
			id, definition_id, current_state, status,
			payload, history, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.DefinitionID, req.CurrentState, req.Status,
		payloadJSON, historyJSON, req.Version, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// Get retrieves a request by id.
func (s *PgRequestStore) Get(ctx context.Context, id string) (*model.RequestInstance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, definition_id, current_state, status,
		       payload, history, version, created_at, updated_at
		FROM requests
		WHERE id = $1`,
		id,
	)
	req, err := scanRequest(row)
	if err == pgx.ErrNoRows {
		return nil, model.NewNotFoundError(fmt.Sprintf("request %q not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	return req, nil
}

// Update persists a mutated request with optimistic locking.
func (s *PgRequestStore) Update(ctx context.Context, req *model.RequestInstance) error {
	payloadJSON, historyJSON, err := marshalRequest(req)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE requests SET
			current_state = $1,
			status = $2,
			payload = $3,
			history = $4,
			version = $5,
			updated_at = $6
		WHERE id = $7 AND version = $8`,
		req.CurrentState, req.Status, payloadJSON, historyJSON,
		req.Version+1, now,
		req.ID, req.Version,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("request %q version conflict (expected %d)", req.ID, req.Version),
		)
	}

	req.Version++
	req.UpdatedAt = now
	return nil
}

// List returns requests matching the filters, newest first.
func (s *PgRequestStore) List(ctx context.Context, filters RequestFilters) ([]*model.RequestInstance, error) {
	query := `
		SELECT id, definition_id, current_state, status,
		       payload, history, version, created_at, updated_at
		FROM requests
		WHERE ($1 = '' OR definition_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`
	args := []any{filters.DefinitionID, filters.Status}

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, filters.Limit)
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var result []*model.RequestInstance
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// GetHistory returns the request's transition history in append order.
func (s *PgRequestStore) GetHistory(ctx context.Context, id string) ([]model.Transition, error) {
	var historyJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT history FROM requests WHERE id = $1`, id,
	).Scan(&historyJSON)
	if err == pgx.ErrNoRows {
		return nil, model.NewNotFoundError(fmt.Sprintf("request %q not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	var history []model.Transition
	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &history); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return history, nil
}

func marshalRequest(req *model.RequestInstance) (payload, history []byte, err error) {
	payload, err = json.Marshal(req.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}
	history, err = json.Marshal(req.HistorySnapshot())
	if err != nil {
		return nil, nil, fmt.Errorf("marshal history: %w", err)
	}
	return payload, history, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*model.RequestInstance, error) {
	var req model.RequestInstance
	var payloadJSON, historyJSON []byte

	err := row.Scan(
		&req.ID, &req.DefinitionID, &req.CurrentState, &req.Status,
		&payloadJSON, &historyJSON, &req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &req.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &req.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return &req, nil
}
