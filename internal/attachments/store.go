// Package attachments persists inbound media: a metadata row in Postgres
// and the payload copied into S3 under a per-lead prefix.
package attachments

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// S3Client interface for S3 operations (allows mocking in tests)
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Attachment is one stored media reference.
type Attachment struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	MessageID string
	MediaType string
	S3Key     *string
	CreatedAt time.Time
}

// Store writes attachment rows and, when a bucket is configured, copies the
// media bytes into S3. The row is written first; a failed upload leaves a
// row without an s3_key rather than an orphaned object.
type Store struct {
	db     rowQuerier
	s3     S3Client // nil disables object copy
	bucket string
	clock  clock.Clock
	logger *logging.Logger
}

func NewStore(pool *pgxpool.Pool, s3Client S3Client, bucket string, clk clock.Clock, logger *logging.Logger) *Store {
	if pool == nil {
		panic("attachments: pgx pool required")
	}
	return newStoreWithDB(pool, s3Client, bucket, clk, logger)
}

func newStoreWithDB(db rowQuerier, s3Client S3Client, bucket string, clk clock.Clock, logger *logging.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, s3: s3Client, bucket: bucket, clock: clk, logger: logger}
}

// objectKey shards media by lead so one lead's references stay together.
func objectKey(leadID uuid.UUID, messageID string) string {
	return fmt.Sprintf("leads/%s/%s", leadID, messageID)
}

// Record stores the attachment row and uploads the payload when present.
func (s *Store) Record(ctx context.Context, leadID uuid.UUID, messageID, mediaType string, payload []byte) (*Attachment, error) {
	att := &Attachment{
		ID:        uuid.New(),
		LeadID:    leadID,
		MessageID: messageID,
		MediaType: mediaType,
		CreatedAt: s.clock.Now(),
	}

	if s.s3 != nil && s.bucket != "" && len(payload) > 0 {
		key := objectKey(leadID, messageID)
		_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String(mediaType),
			Metadata: map[string]string{
				"lead_id":    leadID.String(),
				"message_id": messageID,
			},
		})
		if err != nil {
			s.logger.Warn("attachment upload failed, keeping row without object", "error", err, "lead_id", leadID)
		} else {
			att.S3Key = &key
		}
	}

	query := `
		INSERT INTO attachments (id, lead_id, message_id, media_type, s3_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Exec(ctx, query, att.ID, att.LeadID, att.MessageID, att.MediaType, att.S3Key, att.CreatedAt); err != nil {
		return nil, fmt.Errorf("attachments: insert: %w", err)
	}
	return att, nil
}

// ListByLead returns a lead's attachments, oldest first.
func (s *Store) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Attachment, error) {
	query := `
		SELECT id, lead_id, message_id, media_type, s3_key, created_at
		FROM attachments
		WHERE lead_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("attachments: list: %w", err)
	}
	defer rows.Close()

	var out []Attachment
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.LeadID, &att.MessageID, &att.MediaType, &att.S3Key, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("attachments: scan: %w", err)
		}
		out = append(out, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attachments: iterate: %w", err)
	}
	return out, nil
}
