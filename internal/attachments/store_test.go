package attachments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/pkg/logging"
)

type fakeS3 struct {
	keys []string
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, aws.ToString(params.Key))
	return &s3.PutObjectOutput{}, nil
}

func TestRecordUploadsAndInserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgx mock: %v", err)
	}
	defer mock.Close()

	s3c := &fakeS3{}
	store := newStoreWithDB(mock, s3c, "media-bucket", clock.NewFrozen(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)), logging.New("error"))
	leadID := uuid.New()

	mock.ExpectExec("INSERT INTO attachments").
		WithArgs(pgxmock.AnyArg(), leadID, "wamid.77", "image/jpeg", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	att, err := store.Record(context.Background(), leadID, "wamid.77", "image/jpeg", []byte("jpegbytes"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	wantKey := "leads/" + leadID.String() + "/wamid.77"
	if att.S3Key == nil || *att.S3Key != wantKey {
		t.Fatalf("s3 key = %v, want %s", att.S3Key, wantKey)
	}
	if len(s3c.keys) != 1 || s3c.keys[0] != wantKey {
		t.Fatalf("uploaded keys = %v", s3c.keys)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordKeepsRowWhenUploadFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgx mock: %v", err)
	}
	defer mock.Close()

	s3c := &fakeS3{err: errors.New("s3 down")}
	store := newStoreWithDB(mock, s3c, "media-bucket", nil, logging.New("error"))

	mock.ExpectExec("INSERT INTO attachments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "wamid.78", "image/png", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	att, err := store.Record(context.Background(), uuid.New(), "wamid.78", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("record must survive upload failure: %v", err)
	}
	if att.S3Key != nil {
		t.Fatal("failed upload must leave s3_key empty")
	}
}

func TestRecordWithoutBucketSkipsUpload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgx mock: %v", err)
	}
	defer mock.Close()

	store := newStoreWithDB(mock, nil, "", nil, logging.New("error"))

	mock.ExpectExec("INSERT INTO attachments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "wamid.79", "image/png", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	att, err := store.Record(context.Background(), uuid.New(), "wamid.79", "image/png", nil)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if att.S3Key != nil {
		t.Fatal("no bucket means no object key")
	}
}
