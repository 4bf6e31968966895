package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/types"
)

type putCall struct {
	bucket string
	key    string
	body   []byte
	opts   minio.PutObjectOptions
}

type fakeObjectStore struct {
	exists    bool
	existsErr error
	makeErr   error
	made      []string
	putErr    error
	puts      []putCall
}

func (f *fakeObjectStore) BucketExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeObjectStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return f.makeErr
}

func (f *fakeObjectStore) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(b)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.puts = append(f.puts, putCall{bucket: bucket, key: key, body: b, opts: opts})
	return minio.UploadInfo{Bucket: bucket, Key: key, ETag: "etag-1", Size: size}, nil
}

type snapshotStub struct {
	snap types.Snapshot
	err  error
}

func (s snapshotStub) GetState(context.Context, string) (types.Snapshot, error) { return s.snap, s.err }

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func activeSnapshot() types.Snapshot {
	sent := t0
	return types.Snapshot{
		ContractID:          "c-1",
		State:               types.StateActive,
		SentForSignaturesAt: &sent,
		Signatures: []types.SignatureRecord{
			{Role: types.RoleTenant, SignerName: "Salim", SignedAt: t0.Add(time.Hour)},
			{Role: types.RoleOwner, SignerName: "Ali", SignedAt: t0.Add(2 * time.Hour)},
			{Role: types.RoleAdmin, SignerName: "Admin Office", SignedAt: t0.Add(3 * time.Hour)},
		},
		Version: 4,
	}
}

func TestArchiver_HandleCompleted(t *testing.T) {
	store := &fakeObjectStore{}
	a := NewArchiver(store, snapshotStub{snap: activeSnapshot()}, "signflow-archive", "")
	a.now = func() time.Time { return t0.Add(4 * time.Hour) }

	err := a.Handle(context.Background(), types.Event{ID: "e-9", Type: types.EventWorkflowCompleted, ContractID: "c-1"})
	require.NoError(t, err)
	require.Len(t, store.puts, 1)

	put := store.puts[0]
	assert.Equal(t, "signflow-archive", put.bucket)
	assert.Equal(t, "contracts/c-1/signature-trail.json", put.key)
	assert.Equal(t, "application/json", put.opts.ContentType)
	assert.Equal(t, "e-9", put.opts.UserMetadata["event-id"])

	var trail Trail
	require.NoError(t, json.Unmarshal(put.body, &trail))
	assert.Equal(t, types.StateActive, trail.State)
	assert.Len(t, trail.Signatures, 3)
	assert.Equal(t, "e-9", trail.EventID)
	assert.True(t, trail.ArchivedAt.Equal(t0.Add(4*time.Hour)))
}

func TestArchiver_HandleIgnoresOtherEvents(t *testing.T) {
	store := &fakeObjectStore{}
	a := NewArchiver(store, snapshotStub{err: errors.New("must not be called")}, "b", "trails")

	require.NoError(t, a.Handle(context.Background(), types.Event{Type: types.EventRoleSigned, ContractID: "c-1"}))
	assert.Empty(t, store.puts)
	assert.Equal(t, "trails/c-2/signature-trail.json", a.ObjectKey("c-2"))
}

func TestArchiver_HandleErrors(t *testing.T) {
	ev := types.Event{ID: "e-1", Type: types.EventWorkflowRejected, ContractID: "c-1"}

	a := NewArchiver(&fakeObjectStore{}, snapshotStub{err: types.ErrContractNotFound}, "b", "")
	require.ErrorIs(t, a.Handle(context.Background(), ev), types.ErrContractNotFound)

	open := activeSnapshot()
	open.State = types.StatePendingOwnerSignature
	a = NewArchiver(&fakeObjectStore{}, snapshotStub{snap: open}, "b", "")
	require.ErrorContains(t, a.Handle(context.Background(), ev), "pending_owner_signature")

	a = NewArchiver(&fakeObjectStore{putErr: errors.New("s3 down")}, snapshotStub{snap: activeSnapshot()}, "b", "")
	require.ErrorContains(t, a.Handle(context.Background(), ev), "s3 down")
}

func TestArchiver_EnsureBucket(t *testing.T) {
	store := &fakeObjectStore{exists: true}
	a := NewArchiver(store, nil, "b", "")
	require.NoError(t, a.EnsureBucket(context.Background()))
	assert.Empty(t, store.made)

	store = &fakeObjectStore{}
	a = NewArchiver(store, nil, "b", "")
	require.NoError(t, a.EnsureBucket(context.Background()))
	assert.Equal(t, []string{"b"}, store.made)

	a = NewArchiver(&fakeObjectStore{existsErr: errors.New("denied")}, nil, "b", "")
	require.Error(t, a.EnsureBucket(context.Background()))

	a = NewArchiver(&fakeObjectStore{makeErr: errors.New("quota")}, nil, "b", "")
	require.ErrorContains(t, a.EnsureBucket(context.Background()), "quota")
}

func TestNewMinioClient(t *testing.T) {
	c, err := NewMinioClient(Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "b"})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = NewMinioClient(Config{Endpoint: "http://bad endpoint"})
	require.Error(t, err)
}
