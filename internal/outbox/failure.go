package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// writeDLQ records a failed outbox message alongside the supplied reason. It
// runs inside the dispatcher's batch transaction so the DLQ row and the
// published mark commit together.
func writeDLQ(ctx context.Context, tx pgx.Tx, msg Message, reason string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, error, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW())`,
		msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason, msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
	)
	return err
}
