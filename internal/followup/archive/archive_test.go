package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"leadflow_backend/internal/adapters/storage"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/platform/apperr"
)

type memObjects struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string][]byte
	failPut  bool
	failRead bool
}

func newMemObjects() *memObjects {
	return &memObjects{buckets: map[string]bool{}, objects: map[string][]byte{}}
}

func (m *memObjects) EnsureBucketExists(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	return nil
}

func (m *memObjects) PutObject(_ context.Context, bucket, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return errors.New("s3 down")
	}
	m.objects[bucket+"/"+key] = bytes.Clone(data)
	return nil
}

func (m *memObjects) DownloadFile(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return io.NopCloser(iotest.ErrReader(errors.New("connection reset"))), nil
	}
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		// MinIO reports a missing key on the first read.
		return io.NopCloser(iotest.ErrReader(minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404})), nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) GenerateDownloadURL(_ context.Context, bucket, key string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "http://minio/" + bucket + "/" + key, FileKey: key}, nil
}

func (m *memObjects) ListKeys(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if rest, ok := strings.CutPrefix(k, bucket+"/"); ok && strings.HasPrefix(rest, prefix) {
			keys = append(keys, rest)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var now = time.Date(2025, 3, 15, 23, 30, 0, 0, time.UTC)

func seed(t *testing.T) (*repository.MemoryStore, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	companyID := uuid.New()
	rule := domain.FollowUpRule{ID: uuid.New(), Name: "gap", Active: true, Triggered: 2}
	sent := now.Add(-time.Hour)
	reminders := []domain.Reminder{
		{ID: uuid.New(), RuleID: rule.ID, Status: domain.StatusSent, SentAt: &sent, Interaction: domain.Interaction{Responded: true}},
		{ID: uuid.New(), RuleID: rule.ID, Status: domain.StatusPending},
	}
	leads := []domain.Lead{{ID: uuid.New(), Name: "old", CreatedAt: now.Add(-40 * 24 * time.Hour)}}
	if err := store.SetRules(ctx, companyID, []domain.FollowUpRule{rule}); err != nil {
		t.Fatalf("seed rules: %v", err)
	}
	if err := store.SetReminders(ctx, companyID, reminders); err != nil {
		t.Fatalf("seed reminders: %v", err)
	}
	if err := store.SetLeads(ctx, companyID, leads); err != nil {
		t.Fatalf("seed leads: %v", err)
	}
	return store, companyID
}

func TestArchiveAllAndLoad(t *testing.T) {
	store, companyID := seed(t)
	objects := newMemObjects()
	amsterdam, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	a := New(store, objects, "analytics", nil, amsterdam, nil)
	ctx := context.Background()

	n, err := a.ArchiveAll(ctx, now)
	if err != nil {
		t.Fatalf("archive all: %v", err)
	}
	if n != 1 || !objects.buckets["analytics"] {
		t.Fatalf("expected one snapshot in an ensured bucket, got %d", n)
	}

	dates, err := a.Dates(ctx, companyID)
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	// 23:30 UTC is already the next day in Amsterdam.
	if len(dates) != 1 || dates[0] != "2025-03-16" {
		t.Fatalf("unexpected dates %v", dates)
	}

	snap, err := a.Load(ctx, companyID, dates[0])
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Summary.TotalReminders != 2 || snap.Rules[0].Effectiveness != 50 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	total := 0
	for _, b := range snap.Aging {
		total += b.Count
	}
	if total != 1 {
		t.Fatalf("aging buckets should count one lead, got %d", total)
	}
}

func TestArchiveUploadFailureIsRetryable(t *testing.T) {
	store, companyID := seed(t)
	objects := newMemObjects()
	objects.failPut = true
	a := New(store, objects, "analytics", nil, time.UTC, nil)

	if _, err := a.Archive(context.Background(), companyID, now); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := a.Load(context.Background(), companyID, "15-03-2025"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for malformed date, got %v", err)
	}
}

func TestLoadSeparatesMissingFromUnavailable(t *testing.T) {
	store, companyID := seed(t)
	objects := newMemObjects()
	a := New(store, objects, "analytics", nil, time.UTC, nil)
	ctx := context.Background()

	if _, err := a.Load(ctx, companyID, "2025-03-01"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for a missing snapshot, got %v", err)
	}

	if _, err := a.Archive(ctx, companyID, now); err != nil {
		t.Fatalf("archive: %v", err)
	}
	objects.failRead = true
	if _, err := a.Load(ctx, companyID, "2025-03-15"); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable when storage fails mid-read, got %v", err)
	}
}

func TestDownloadURLRequiresStoredSnapshot(t *testing.T) {
	store, companyID := seed(t)
	objects := newMemObjects()
	a := New(store, objects, "analytics", nil, time.UTC, nil)
	ctx := context.Background()

	if _, err := a.DownloadURL(ctx, companyID, "2025-03-15"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found before archiving, got %v", err)
	}
	key, err := a.Archive(ctx, companyID, now)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	link, err := a.DownloadURL(ctx, companyID, "2025-03-15")
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	if link.FileKey != key || !strings.HasSuffix(link.URL, key) {
		t.Fatalf("unexpected link %+v for key %s", link, key)
	}
}
