package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lunahub/hub/internal/apierr"
	"github.com/lunahub/hub/internal/dbtx"
)

// Store provides append-only access to the durable event log.
type Store struct {
	dbtx dbtx.DBTX
}

// NewStore creates an event Store backed by the given database handle.
func NewStore(handle dbtx.DBTX) *Store {
	return &Store{dbtx: handle}
}

const eventColumns = `event_id, user_id, event_type, app_source, event_data, metadata, created_at`

// Append validates and durably appends a single event, returning its
// server-generated id. events are stamped with monotonic UTC time
// and never rewritten.
func (s *Store) Append(ctx context.Context, userID uuid.UUID, eventType, appSource string, eventData, metadata map[string]any) (uuid.UUID, error) {
	if err := validateEvent(eventType, appSource, eventData); err != nil {
		return uuid.Nil, err
	}

	dataJSON, err := json.Marshal(eventData)
	if err != nil {
		return uuid.Nil, apierr.Wrap(apierr.CodeInvalidEvent, "event_data is not valid JSON", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return uuid.Nil, apierr.Wrap(apierr.CodeInvalidEvent, "metadata is not valid JSON", err)
	}

	eventID := uuid.New()
	query := `INSERT INTO events (event_id, user_id, event_type, app_source, event_data, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.dbtx.Exec(ctx, query, eventID, userID, eventType, appSource, dataJSON, metaJSON, time.Now().UTC())
	if err != nil {
		return uuid.Nil, apierr.Wrap(apierr.CodeEventStoreUnavailable, "appending event", err)
	}
	return eventID, nil
}

// Query returns events for userID in reverse chronological order, optionally
// filtered by eventType and a since cutoff, bounded by limit.
func (s *Store) Query(ctx context.Context, userID uuid.UUID, limit int, eventType string, since *time.Time) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE user_id = $1`
	args := []any{userID}
	argN := 2

	if eventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argN)
		args = append(args, eventType)
		argN++
	}
	if since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argN)
		args = append(args, *since)
		argN++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeEventStoreUnavailable, "querying events", err)
	}
	return scanEvents(rows)
}

// Get fetches a single event by id, scoped to userID so callers cannot read
// across the ownership boundary by guessing ids.
func (s *Store) Get(ctx context.Context, userID, eventID uuid.UUID) (Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_id = $1 AND user_id = $2`
	row := s.dbtx.QueryRow(ctx, query, eventID, userID)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, apierr.New(apierr.CodeInvalidInput, "event not found")
		}
		return Event{}, apierr.Wrap(apierr.CodeEventStoreUnavailable, "fetching event", err)
	}
	return ev, nil
}

// FindByTypeAndField scans the most recent events of eventType for userID
// looking for one whose event_data contains key=value. Used for cross-event
// idempotency lookups (refund/purchase dedup) where no dedicated index
// exists; bounded by scanLimit, a documented O(N) fallback.
func (s *Store) FindByTypeAndField(ctx context.Context, userID uuid.UUID, eventType, key, value string, scanLimit int) (*Event, error) {
	events, err := s.Query(ctx, userID, scanLimit, eventType, nil)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if v, ok := events[i].EventData[key]; ok {
			if s, ok := v.(string); ok && s == value {
				return &events[i], nil
			}
		}
	}
	return nil, nil
}

// RecentlyActiveUserIDs returns the distinct users who have appended an
// event since cutoff, bounded by limit. Used by the background worker to
// decide whose narrative cache is worth warming.
func (s *Store) RecentlyActiveUserIDs(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.dbtx.Query(ctx, `
		SELECT DISTINCT user_id FROM events WHERE created_at >= $1
		ORDER BY user_id LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeEventStoreUnavailable, "querying recently active users", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user id rows: %w", err)
	}
	return ids, nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var ev Event
	var dataJSON, metaJSON []byte
	if err := row.Scan(&ev.EventID, &ev.UserID, &ev.EventType, &ev.AppSource, &dataJSON, &metaJSON, &ev.CreatedAt); err != nil {
		return Event{}, err
	}
	if err := json.Unmarshal(dataJSON, &ev.EventData); err != nil {
		return Event{}, fmt.Errorf("unmarshaling event_data: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
		return Event{}, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return ev, nil
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var dataJSON, metaJSON []byte
		var ev Event
		if err := rows.Scan(&ev.EventID, &ev.UserID, &ev.EventType, &ev.AppSource, &dataJSON, &metaJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		if err := json.Unmarshal(dataJSON, &ev.EventData); err != nil {
			return nil, fmt.Errorf("unmarshaling event_data: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return out, nil
}

func validateEvent(eventType, appSource string, eventData map[string]any) error {
	if eventType == "" {
		return apierr.New(apierr.CodeInvalidEvent, "event_type is required")
	}
	if appSource == "" {
		return apierr.New(apierr.CodeInvalidEvent, "app_source is required")
	}
	if eventData != nil {
		b, err := json.Marshal(eventData)
		if err != nil {
			return apierr.Wrap(apierr.CodeInvalidEvent, "event_data is not serializable", err)
		}
		if len(b) > MaxEventDataBytes {
			return apierr.Newf(apierr.CodeInvalidEvent, "event_data exceeds %d bytes", MaxEventDataBytes)
		}
	}
	return nil
}
