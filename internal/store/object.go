package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectPrefix = "configs/"

type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// ObjectStore keeps one JSON object per session in an S3-compatible bucket.
// The revision check is read-then-write, so two writers racing on the same
// session can both pass it. Use the postgres or redis backend when that
// matters.
type ObjectStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

type objectEnvelope struct {
	SessionID string          `json:"session_id"`
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
	Document  json.RawMessage `json:"document"`
}

func NewObjectStore(cfg ObjectConfig) (*ObjectStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("object store endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("object store bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object client: %w", err)
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *ObjectStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("ping object store: %w", err)
	}
	return nil
}

func (s *ObjectStore) GetConfig(ctx context.Context, sessionID string) (ConfigRecord, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(sessionID), minio.GetObjectOptions{})
	if err != nil {
		return ConfigRecord{}, mapObjectError("get config", err)
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		return ConfigRecord{}, mapObjectError("get config", err)
	}
	return decodeEnvelope(sessionID, payload)
}

func (s *ObjectStore) PutConfig(ctx context.Context, record ConfigRecord) (ConfigRecord, error) {
	current, err := s.GetConfig(ctx, record.SessionID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return ConfigRecord{}, err
	case current.Revision > record.Revision:
		return ConfigRecord{}, ErrStaleRevision
	}

	record.UpdatedAt = s.now().UTC()
	payload, err := encodeEnvelope(record)
	if err != nil {
		return ConfigRecord{}, err
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectKey(record.SessionID), bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return ConfigRecord{}, fmt.Errorf("put config: %w", err)
	}
	return record, nil
}

func (s *ObjectStore) DeleteConfig(ctx context.Context, sessionID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey(sessionID), minio.RemoveObjectOptions{}); err != nil {
		return mapObjectError("delete config", err)
	}
	return nil
}

func objectKey(sessionID string) string {
	return objectPrefix + sessionID + ".json"
}

func encodeEnvelope(record ConfigRecord) ([]byte, error) {
	document := record.Document
	if len(bytes.TrimSpace(document)) == 0 {
		document = json.RawMessage("null")
	}
	payload, err := json.Marshal(objectEnvelope{
		SessionID: record.SessionID,
		Revision:  record.Revision,
		UpdatedAt: record.UpdatedAt,
		Document:  document,
	})
	if err != nil {
		return nil, fmt.Errorf("encode config object: %w", err)
	}
	return payload, nil
}

func decodeEnvelope(sessionID string, payload []byte) (ConfigRecord, error) {
	var envelope objectEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ConfigRecord{}, fmt.Errorf("decode config object: %w", err)
	}
	return ConfigRecord{
		SessionID: sessionID,
		Document:  envelope.Document,
		Revision:  envelope.Revision,
		UpdatedAt: envelope.UpdatedAt,
	}, nil
}

func mapObjectError(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
