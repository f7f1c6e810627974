package store

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/neurotrace/connectome/internal/domain"
)

// ObjectOptions configures an S3-compatible result bucket.
type ObjectOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// ObjectStore keeps results as objects {prefix}/{run}/{id}_downstreampartners.csv.
type ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectStore connects to the endpoint and returns a store for the bucket.
func NewObjectStore(opts ObjectOptions) (*ObjectStore, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("object store endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return NewObjectStoreWithClient(client, opts.Bucket, opts.Prefix), nil
}

// NewObjectStoreWithClient wraps an existing client.
func NewObjectStoreWithClient(client *minio.Client, bucket, prefix string) *ObjectStore {
	return &ObjectStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for a neuron's result.
func (s *ObjectStore) Key(run string, id domain.NeuronID) string {
	return path.Join(s.prefix, run, FileName(id))
}

func (s *ObjectStore) List(ctx context.Context, run string) ([]domain.NeuronID, error) {
	if err := CheckRun(run); err != nil {
		return nil, err
	}
	prefix := path.Join(s.prefix, run) + "/"
	var ids []domain.NeuronID
	// The iterator runs on this goroutine, so returning early leaves nothing behind.
	for obj := range s.client.ListObjectsIter(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		if id, ok := ParseFileName(path.Base(obj.Key)); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *ObjectStore) Write(ctx context.Context, run string, table domain.PartnerTable) error {
	if err := CheckRun(run); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := EncodeTable(&buf, table); err != nil {
		return fmt.Errorf("encode result %d: %w", table.Neuron, err)
	}
	key := s.Key(run, table.Neuron)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) Read(ctx context.Context, run string, id domain.NeuronID) (domain.PartnerTable, error) {
	if err := CheckRun(run); err != nil {
		return domain.PartnerTable{}, err
	}
	key := s.Key(run, id)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return domain.PartnerTable{}, s.mapErr(key, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return domain.PartnerTable{}, s.mapErr(key, err)
	}
	return DecodeTable(obj, id)
}

func (s *ObjectStore) mapErr(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("get %s: %w", key, err)
}
