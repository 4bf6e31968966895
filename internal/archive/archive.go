package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
)

type Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

func NewMinioClient(cfg Config) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// ObjectStore is the subset of *minio.Client the archiver uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type SnapshotReader interface {
	GetState(ctx context.Context, contractID string) (types.Snapshot, error)
}

// Trail is the archived record of a finished workflow.
type Trail struct {
	ContractID          string                  `json:"contract_id"`
	State               types.State             `json:"state"`
	SentForSignaturesAt *time.Time              `json:"sent_for_signatures_at,omitempty"`
	RequestedBy         string                  `json:"requested_by,omitempty"`
	Signatures          []types.SignatureRecord `json:"signatures"`
	RejectedAt          *time.Time              `json:"rejected_at,omitempty"`
	RejectReason        string                  `json:"reject_reason,omitempty"`
	Timing              types.Timing            `json:"timing"`
	Version             int64                   `json:"version"`
	EventID             string                  `json:"event_id"`
	ArchivedAt          time.Time               `json:"archived_at"`
}

// Archiver writes the signature trail of every completed or rejected workflow
// to object storage. Re-delivered events overwrite the same object.
type Archiver struct {
	store  ObjectStore
	reader SnapshotReader
	bucket string
	prefix string
	now    func() time.Time
}

func NewArchiver(store ObjectStore, reader SnapshotReader, bucket string, prefix string) *Archiver {
	if prefix == "" {
		prefix = "contracts"
	}
	return &Archiver{store: store, reader: reader, bucket: bucket, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

func (a *Archiver) ObjectKey(contractID string) string {
	return path.Join(a.prefix, contractID, "signature-trail.json")
}

func (a *Archiver) Handle(ctx context.Context, ev types.Event) error {
	if ev.Type != types.EventWorkflowCompleted && ev.Type != types.EventWorkflowRejected {
		return nil
	}
	snap, err := a.reader.GetState(ctx, ev.ContractID)
	if err != nil {
		return fmt.Errorf("archive %s: %w", ev.ContractID, err)
	}
	if !snap.State.Terminal() {
		return fmt.Errorf("archive %s: workflow is %s", ev.ContractID, snap.State)
	}

	body, err := json.MarshalIndent(Trail{
		ContractID:          snap.ContractID,
		State:               snap.State,
		SentForSignaturesAt: snap.SentForSignaturesAt,
		RequestedBy:         snap.RequestedBy,
		Signatures:          snap.Signatures,
		RejectedAt:          snap.RejectedAt,
		RejectReason:        snap.RejectReason,
		Timing:              snap.Timing,
		Version:             snap.Version,
		EventID:             ev.ID,
		ArchivedAt:          a.now(),
	}, "", "  ")
	if err != nil {
		return err
	}

	key := a.ObjectKey(snap.ContractID)
	info, err := a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"contract-id": snap.ContractID,
			"event-id":    ev.ID,
			"state":       string(snap.State),
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	logger.Info(ctx, "signature trail archived", "contract_id", snap.ContractID, "bucket", a.bucket, "key", key, "etag", info.ETag)
	return nil
}
