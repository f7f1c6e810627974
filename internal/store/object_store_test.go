package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurotrace/connectome/internal/domain"
)

// fakeS3 serves the handful of S3 calls ObjectStore makes against one
// in-memory bucket.
type fakeS3 struct {
	bucket string

	mu      sync.Mutex
	objects map[string][]byte
	lists   int
}

func newFakeS3(t *testing.T, bucket string) (*fakeS3, *minio.Client) {
	t.Helper()
	f := &fakeS3{bucket: bucket, objects: make(map[string][]byte)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	return f, client
}

func (f *fakeS3) stored() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/"+f.bucket)
	if !ok {
		f.fail(w, http.StatusNotFound, "NoSuchBucket")
		return
	}
	key := strings.TrimPrefix(rest, "/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case key == "" && r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		f.lists++
		f.list(w, r.URL.Query().Get("prefix"), r.URL.Query().Get("delimiter"))
	case key != "" && r.Method == http.MethodPut:
		body, err := readPayload(r)
		if err != nil {
			f.fail(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		f.objects[key] = body
		w.Header().Set("ETag", `"`+strconv.Itoa(len(body))+`"`)
		w.WriteHeader(http.StatusOK)
	case key != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead):
		body, found := f.objects[key]
		if !found {
			f.fail(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		h := w.Header()
		h.Set("Content-Length", strconv.Itoa(len(body)))
		h.Set("Content-Type", "text/csv")
		h.Set("ETag", `"`+strconv.Itoa(len(body))+`"`)
		h.Set("Last-Modified", time.Unix(0, 0).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	default:
		f.fail(w, http.StatusNotImplemented, "NotImplemented")
	}
}

type listEntry struct {
	Key          string
	LastModified string
	ETag         string
	Size         int
}

type listPrefix struct {
	Prefix string
}

type listResult struct {
	XMLName        xml.Name `xml:"ListBucketResult"`
	Name           string
	Prefix         string
	Delimiter      string
	KeyCount       int
	MaxKeys        int
	IsTruncated    bool
	Contents       []listEntry
	CommonPrefixes []listPrefix
}

func (f *fakeS3) list(w http.ResponseWriter, prefix, delimiter string) {
	res := listResult{Name: f.bucket, Prefix: prefix, Delimiter: delimiter, MaxKeys: 1000}
	seen := map[string]bool{}
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if delimiter != "" {
			if i := strings.Index(k[len(prefix):], delimiter); i >= 0 {
				p := k[:len(prefix)+i+len(delimiter)]
				if !seen[p] {
					seen[p] = true
					res.CommonPrefixes = append(res.CommonPrefixes, listPrefix{Prefix: p})
				}
				continue
			}
		}
		res.Contents = append(res.Contents, listEntry{
			Key:          k,
			LastModified: time.Unix(0, 0).UTC().Format("2006-01-02T15:04:05.000Z"),
			ETag:         `"` + strconv.Itoa(len(f.objects[k])) + `"`,
			Size:         len(f.objects[k]),
		})
	}
	res.KeyCount = len(res.Contents) + len(res.CommonPrefixes)
	w.Header().Set("Content-Type", "application/xml")
	_ = xml.NewEncoder(w).Encode(res)
}

func (f *fakeS3) fail(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<Error><Code>%s</Code><Message>%s</Message></Error>", code, code)
}

// readPayload returns the object bytes of a PUT, decoding the aws-chunked
// framing the client uses for signed uploads over plain http.
func readPayload(r *http.Request) ([]byte, error) {
	chunked := strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING") ||
		strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked")
	if !chunked {
		return io.ReadAll(r.Body)
	}
	var out bytes.Buffer
	br := bufio.NewReader(r.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(size, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, n); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}

func TestObjectStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake, client := newFakeS3(t, "results")
	s := NewObjectStoreWithClient(client, "results", "cascades")

	run := RunKey(10045, 0.5)
	tables := []domain.PartnerTable{
		{Neuron: 10047, Direction: domain.Downstream, Rows: []domain.Connection{{Partner: 10050, Weight: 4, Percent: 2.5, Type: "IN08B"}}},
		{Neuron: 10045, Direction: domain.Downstream, Rows: []domain.Connection{
			{Partner: 10046, Weight: 12, Percent: 6, Type: "DNg11"},
			{Partner: 10047, Weight: 3, Percent: 1.5, Type: domain.Unknown},
		}},
	}
	for _, table := range tables {
		require.NoError(t, s.Write(ctx, run, table))
	}
	require.NoError(t, s.Write(ctx, RunKey(10046, 0.5), domain.PartnerTable{Neuron: 10099, Direction: domain.Downstream}))

	assert.Equal(t, []string{
		"cascades/10045-0.5/10045_downstreampartners.csv",
		"cascades/10045-0.5/10047_downstreampartners.csv",
		"cascades/10046-0.5/10099_downstreampartners.csv",
	}, fake.stored())

	ids, err := s.List(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, []domain.NeuronID{10045, 10047}, ids)

	got, err := s.Read(ctx, run, 10045)
	require.NoError(t, err)
	assert.Equal(t, domain.NeuronID(10045), got.Neuron)
	assert.Equal(t, tables[1].Rows, got.Rows)

	empty, err := s.List(ctx, RunKey(1, 0.5))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestObjectStoreReadMissing(t *testing.T) {
	_, client := newFakeS3(t, "results")
	s := NewObjectStoreWithClient(client, "results", "")

	_, err := s.Read(context.Background(), RunKey(10045, 0.5), 10045)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestObjectStoreRejectsInvalidRun(t *testing.T) {
	fake, client := newFakeS3(t, "results")
	s := NewObjectStoreWithClient(client, "results", "cascades")
	ctx := context.Background()

	_, err := s.List(ctx, "../other")
	assert.ErrorIs(t, err, ErrInvalidRun)
	_, err = s.Read(ctx, "../other", 1)
	assert.ErrorIs(t, err, ErrInvalidRun)
	assert.ErrorIs(t, s.Write(ctx, "x/../../y", domain.PartnerTable{Neuron: 1}), ErrInvalidRun)
	assert.Zero(t, fake.listCalls())
	assert.Empty(t, fake.stored())
}

func TestObjectStoreListStopsOnError(t *testing.T) {
	_, client := newFakeS3(t, "results")
	s := NewObjectStoreWithClient(client, "missing", "")

	_, err := s.List(context.Background(), RunKey(10045, 0.5))
	var resp minio.ErrorResponse
	require.ErrorAs(t, err, &resp)
	assert.Equal(t, "NoSuchBucket", resp.Code)
}
