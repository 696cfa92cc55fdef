package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/scribe/pkg/domain/model"
	"github.com/m-mizutani/scribe/pkg/domain/types"
)

const pgUniqueViolation = "23505"

// InsertEvent persists a new event. A unique violation on the delivery ID is
// reported as types.ErrDuplicateDelivery: redelivery is expected and the
// caller treats it as success. Any other constraint violation surfaces as a
// store conflict.
func (c *Client) InsertEvent(ctx context.Context, event *model.PersistedEvent) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO events (id, occurred_at, delivery_id, repo_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(event.ID), event.OccurredAt, string(event.DeliveryID),
		event.RepoID, event.Type, event.Payload,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == "events_delivery_id_key" {
				return goerr.Wrap(types.ErrDuplicateDelivery, "duplicate delivery",
					goerr.V("delivery_id", event.DeliveryID))
			}
			return goerr.Wrap(types.ErrStorageConflict, "unexpected unique violation",
				goerr.V("constraint", pgErr.ConstraintName),
				goerr.V("delivery_id", event.DeliveryID))
		}
		return goerr.Wrap(err, "failed to insert event",
			goerr.V("delivery_id", event.DeliveryID))
	}
	return nil
}

// GetEvent fetches an event by internal ID.
func (c *Client) GetEvent(ctx context.Context, id types.EventID) (*model.PersistedEvent, error) {
	return c.getEvent(ctx, "id = $1", string(id))
}

// GetEventByDeliveryID fetches an event by its platform delivery ID.
func (c *Client) GetEventByDeliveryID(ctx context.Context, id types.DeliveryID) (*model.PersistedEvent, error) {
	return c.getEvent(ctx, "delivery_id = $1", string(id))
}

func (c *Client) getEvent(ctx context.Context, where string, arg any) (*model.PersistedEvent, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, occurred_at, delivery_id, repo_id, event_type, payload,
		       processed, errored, created_at
		FROM events WHERE `+where, arg)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(types.ErrEventNotFound, "event lookup failed",
				goerr.V("key", arg))
		}
		return nil, goerr.Wrap(err, "failed to query event")
	}
	return event, nil
}

// errEventCompleted signals that another run already committed a summary for
// the event. CompleteEvent swallows it after the rollback.
var errEventCompleted = goerr.New("event already completed")

// CompleteEvent records the terminal outcome of a workflow run: the summary
// row and the processed flag flip commit together or not at all. The unique
// constraint on (event_id, occurred_at) keeps the record single even when
// two runs of the same event race past the processed pre-check; the loser's
// transaction rolls back and counts as success.
func (c *Client) CompleteEvent(ctx context.Context, record *model.SummaryRecord) error {
	err := c.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO summaries (event_id, occurred_at, summary_text, tech_stack, embedding, status)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			string(record.EventID), record.OccurredAt, record.SummaryText,
			record.TechStack, record.Embedding, string(record.Status),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation &&
				pgErr.ConstraintName == "summaries_event_id_key" {
				return errEventCompleted
			}
			return goerr.Wrap(err, "failed to insert summary",
				goerr.V("event_id", record.EventID))
		}

		tag, err := tx.Exec(ctx,
			`UPDATE events SET processed = TRUE WHERE id = $1 AND occurred_at = $2`,
			string(record.EventID), record.OccurredAt,
		)
		if err != nil {
			return goerr.Wrap(err, "failed to mark event processed")
		}
		if tag.RowsAffected() == 0 {
			return goerr.Wrap(types.ErrEventNotFound, "event vanished before completion",
				goerr.V("event_id", record.EventID))
		}
		return nil
	})
	if errors.Is(err, errEventCompleted) {
		return nil
	}
	return err
}

// MarkEventErrored sets the error marker so the reconciliation sweep leaves
// the event alone and operators can inspect it.
func (c *Client) MarkEventErrored(ctx context.Context, id types.EventID) error {
	_, err := c.pool.Exec(ctx,
		`UPDATE events SET errored = TRUE WHERE id = $1`, string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to mark event errored", goerr.V("event_id", id))
	}
	return nil
}

// ListUnprocessed returns admitted events still waiting for a workflow run,
// oldest first. Errored events are excluded so a poison event cannot loop
// through the sweep forever.
func (c *Client) ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]*model.PersistedEvent, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, occurred_at, delivery_id, repo_id, event_type, payload,
		       processed, errored, created_at
		FROM events
		WHERE processed = FALSE AND errored = FALSE AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query unprocessed events")
	}
	defer rows.Close()

	var events []*model.PersistedEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan event row")
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*model.PersistedEvent, error) {
	var event model.PersistedEvent
	var id, deliveryID string
	if err := row.Scan(&id, &event.OccurredAt, &deliveryID, &event.RepoID,
		&event.Type, &event.Payload, &event.Processed, &event.Errored,
		&event.CreatedAt); err != nil {
		return nil, err
	}
	event.ID = types.EventID(id)
	event.DeliveryID = types.DeliveryID(deliveryID)
	return &event, nil
}
