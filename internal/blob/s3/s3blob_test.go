package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

type fakeUploadAPI struct {
	mu   sync.Mutex
	puts []*s3.PutObjectInput
	body [][]byte
}

func (f *fakeUploadAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, in)
	f.body = append(f.body, data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeUploadAPI) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("unexpected multipart part")
}

func (f *fakeUploadAPI) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart create")
}

func (f *fakeUploadAPI) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart complete")
}

func (f *fakeUploadAPI) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestWriterPut(t *testing.T) {
	api := &fakeUploadAPI{}
	w := newWriter(api, "bucket", "whalewatch")

	err := w.Put(context.Background(), "reports/a.csv", bytes.NewReader([]byte("x,y\n")), "text/csv")
	require.NoError(t, err)

	require.Len(t, api.puts, 1)
	assert.Equal(t, "bucket", aws.ToString(api.puts[0].Bucket))
	assert.Equal(t, "whalewatch/reports/a.csv", aws.ToString(api.puts[0].Key))
	assert.Equal(t, "text/csv", aws.ToString(api.puts[0].ContentType))
	assert.Equal(t, "x,y\n", string(api.body[0]))
}

func TestWriterPutMultipart_SmallBodySinglePart(t *testing.T) {
	api := &fakeUploadAPI{}
	w := newWriter(api, "bucket", "")

	err := w.PutMultipart(context.Background(), "big.csv", bytes.NewReader([]byte("tiny")), 1)
	require.NoError(t, err)

	require.Len(t, api.puts, 1)
	assert.Equal(t, "big.csv", aws.ToString(api.puts[0].Key))
	assert.Equal(t, "tiny", string(api.body[0]))
}

type recordingWriter struct {
	puts      map[string][]byte
	multipart map[string][]byte
	err       error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{puts: map[string][]byte{}, multipart: map[string][]byte{}}
}

func (w *recordingWriter) Put(_ context.Context, p string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, _ := io.ReadAll(data)
	w.puts[p] = b
	return nil
}

func (w *recordingWriter) PutMultipart(_ context.Context, p string, data io.Reader, _ int64) error {
	b, _ := io.ReadAll(data)
	w.multipart[p] = b
	return nil
}

type recordingAudit struct {
	events []string
}

func (a *recordingAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiverStore(t *testing.T) {
	w := newRecordingWriter()
	audit := &recordingAudit{}
	a := NewArchiver(w, audit)
	at := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)

	key, err := a.Store(context.Background(), "weighted_sentiment", at, []byte("Asset\n"))
	require.NoError(t, err)

	assert.Equal(t, "reports/weighted_sentiment/2025-06-07_08-09.csv", key)
	assert.Equal(t, []byte("Asset\n"), w.puts[key])
	assert.Equal(t, []string{"archive.report"}, audit.events)
}

func TestArchiverStore_LargeReportUsesMultipart(t *testing.T) {
	w := newRecordingWriter()
	a := NewArchiver(w, nil)
	a.multipartThreshold = 4

	key, err := a.Store(context.Background(), "r", time.Unix(0, 0), []byte("0123456789"))
	require.NoError(t, err)

	assert.Contains(t, w.multipart, key)
	assert.Empty(t, w.puts)
}

func TestArchiverStore_UploadError(t *testing.T) {
	w := newRecordingWriter()
	w.err = errors.New("denied")
	audit := &recordingAudit{}
	a := NewArchiver(w, audit)

	_, err := a.Store(context.Background(), "r", time.Now(), []byte("x"))
	assert.Error(t, err)
	assert.Empty(t, audit.events)
}

func TestArchiverArchiveFills(t *testing.T) {
	w := newRecordingWriter()
	a := NewArchiver(w, &recordingAudit{})
	at := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	fills := []domain.Fill{
		{Trader: "0xa", Asset: "BTC", Price: 100, Size: 1, IsBuy: true, Direction: "Open Long", Timestamp: 1},
		{Trader: "0xb", Asset: "ETH", Price: 10, Size: 2, Direction: "Open Short", Timestamp: 2},
	}

	key, err := a.ArchiveFills(context.Background(), at, fills)
	require.NoError(t, err)
	assert.Equal(t, "archive/fills/2025-06-07/080910.jsonl", key)

	sc := bufio.NewScanner(bytes.NewReader(w.puts[key]))
	var decoded []domain.Fill
	for sc.Scan() {
		var f domain.Fill
		require.NoError(t, json.Unmarshal(sc.Bytes(), &f))
		decoded = append(decoded, f)
	}
	assert.Equal(t, fills, decoded)

	key, err = a.ArchiveFills(context.Background(), at, nil)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio.local:9000", normaliseEndpoint("https://minio.local:9000", false))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://e2.example.com", normaliseEndpoint("e2.example.com", false))
}
