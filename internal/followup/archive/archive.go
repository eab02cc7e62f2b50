// Package archive writes daily analytics snapshots to object storage so
// trends survive after reminders are pruned or edited.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/adapters/storage"
	"leadflow_backend/internal/followup/analytics"
	"leadflow_backend/internal/followup/domain"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

const (
	contentTypeJSON = "application/json"
	dateLayout      = "2006-01-02"
)

// Snapshot is one company's analytics as of a calendar day.
type Snapshot struct {
	CompanyID uuid.UUID               `json:"companyId"`
	Date      string                  `json:"date"`
	Summary   analytics.Summary       `json:"summary"`
	Rules     []analytics.RuleStats   `json:"rules"`
	Aging     []analytics.BucketCount `json:"aging"`
	Overdue   int                     `json:"overdue"`
	TakenAt   time.Time               `json:"takenAt"`
}

// Archiver builds and stores snapshots.
type Archiver struct {
	store   repository.Store
	objects storage.StorageService
	bucket  string
	buckets []domain.AgingBucket
	loc     *time.Location
	log     *logger.Logger
}

func New(store repository.Store, objects storage.StorageService, bucket string, buckets []domain.AgingBucket, loc *time.Location, log *logger.Logger) *Archiver {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Archiver{store: store, objects: objects, bucket: bucket, buckets: buckets, loc: loc, log: log}
}

// Key is the object key of a company's snapshot for a day.
func Key(companyID uuid.UUID, day time.Time) string {
	return path.Join(companyID.String(), day.Format(dateLayout)+".json")
}

// Build computes the snapshot of a company as of now.
func (a *Archiver) Build(ctx context.Context, companyID uuid.UUID, now time.Time) (Snapshot, error) {
	snap, err := a.store.Snapshot(ctx, companyID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load company state: %w", err)
	}
	aging := analytics.Aging(snap.Leads, a.buckets, now)
	return Snapshot{
		CompanyID: companyID,
		Date:      now.In(a.loc).Format(dateLayout),
		Summary:   analytics.Summarize(snap.Rules, snap.Reminders, now, a.loc),
		Rules:     analytics.RuleEffectiveness(snap.Rules, snap.Reminders),
		Aging:     aging.Buckets,
		Overdue:   aging.Overdue,
		TakenAt:   now,
	}, nil
}

// Archive stores today's snapshot of a company, replacing an earlier one
// from the same day. It returns the object key.
func (a *Archiver) Archive(ctx context.Context, companyID uuid.UUID, now time.Time) (string, error) {
	snapshot, err := a.Build(ctx, companyID, now)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	key := Key(companyID, now.In(a.loc))
	if err := a.objects.PutObject(ctx, a.bucket, key, contentTypeJSON, data); err != nil {
		return "", apperr.Unavailable("snapshot upload failed", err)
	}
	a.log.Info("analytics snapshot archived", "companyId", companyID, "key", key)
	return key, nil
}

// ArchiveAll snapshots every known company. Failures are logged and the
// remaining companies are still archived.
func (a *Archiver) ArchiveAll(ctx context.Context, now time.Time) (int, error) {
	if err := a.objects.EnsureBucketExists(ctx, a.bucket); err != nil {
		return 0, apperr.Unavailable("snapshot bucket unavailable", err)
	}
	companies, err := a.store.Companies(ctx)
	if err != nil {
		return 0, fmt.Errorf("list companies: %w", err)
	}
	archived := 0
	for _, companyID := range companies {
		if ctx.Err() != nil {
			return archived, ctx.Err()
		}
		if _, err := a.Archive(ctx, companyID, now); err != nil {
			a.log.Warn("analytics snapshot failed", "companyId", companyID, "error", err)
			continue
		}
		archived++
	}
	return archived, nil
}

// Dates lists the days with a stored snapshot for a company.
func (a *Archiver) Dates(ctx context.Context, companyID uuid.UUID) ([]string, error) {
	keys, err := a.objects.ListKeys(ctx, a.bucket, companyID.String()+"/")
	if err != nil {
		return nil, apperr.Unavailable("snapshot listing failed", err)
	}
	dates := make([]string, 0, len(keys))
	for _, key := range keys {
		dates = append(dates, strings.TrimSuffix(path.Base(key), ".json"))
	}
	return dates, nil
}

// Load reads a stored snapshot.
func (a *Archiver) Load(ctx context.Context, companyID uuid.UUID, date string) (Snapshot, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return Snapshot{}, apperr.BadRequest("date must be YYYY-MM-DD")
	}
	rc, err := a.objects.DownloadFile(ctx, a.bucket, Key(companyID, day))
	if err != nil {
		return Snapshot{}, downloadError(err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return Snapshot{}, downloadError(err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

// DownloadURL returns a presigned link to a stored snapshot.
func (a *Archiver) DownloadURL(ctx context.Context, companyID uuid.UUID, date string) (*storage.PresignedURL, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, apperr.BadRequest("date must be YYYY-MM-DD")
	}
	key := Key(companyID, day)
	keys, err := a.objects.ListKeys(ctx, a.bucket, key)
	if err != nil {
		return nil, apperr.Unavailable("snapshot listing failed", err)
	}
	if !slices.Contains(keys, key) {
		return nil, apperr.NotFound("snapshot not found")
	}
	url, err := a.objects.GenerateDownloadURL(ctx, a.bucket, key)
	if err != nil {
		return nil, apperr.Unavailable("snapshot link unavailable", err)
	}
	return url, nil
}

func downloadError(err error) error {
	if storage.IsNotFound(err) {
		return apperr.NotFound("snapshot not found")
	}
	return apperr.Unavailable("snapshot download failed", err)
}
