package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/snapframe/internal/backend/database"
	"github.com/jo-hoe/snapframe/internal/common"
)

const dateLayout = "2006-01-02"

// ErrInvalidFilter marks admin filter values that cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// PhotoFilter narrows the admin listing. Zero values match everything.
type PhotoFilter struct {
	From  string `query:"from"`
	To    string `query:"to"`
	Query string `query:"q"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type PhotoStats struct {
	Total     int          `json:"total"`
	Today     int          `json:"today"`
	ThisWeek  int          `json:"thisWeek"`
	ThisMonth int          `json:"thisMonth"`
	Daily     []DailyCount `json:"daily"`
}

func (service *CoreService) allPhotos(ctx context.Context) ([]*database.PublishedRecord, error) {
	records, err := service.records.SelectRecent(ctx, service.config.Admin.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return records, nil
}

// ListPhotos returns records newest first, filtered by creation day and a
// case-insensitive search over file name and id.
func (service *CoreService) ListPhotos(ctx context.Context, filter PhotoFilter) ([]*database.PublishedRecord, error) {
	var from, to time.Time
	var err error
	if filter.From != "" {
		if from, err = time.ParseInLocation(dateLayout, filter.From, service.location); err != nil {
			return nil, fmt.Errorf("%w: from date %q: %v", ErrInvalidFilter, filter.From, err)
		}
	}
	if filter.To != "" {
		if to, err = time.ParseInLocation(dateLayout, filter.To, service.location); err != nil {
			return nil, fmt.Errorf("%w: to date %q: %v", ErrInvalidFilter, filter.To, err)
		}
		// inclusive of the whole day
		to = to.AddDate(0, 0, 1)
	}
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	records, err := service.allPhotos(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]*database.PublishedRecord, 0, len(records))
	for _, r := range records {
		if !from.IsZero() && r.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !r.CreatedAt.Before(to) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(r.FileName), query) &&
			!strings.Contains(strings.ToLower(r.ID), query) {
			continue
		}
		filtered = append(filtered, service.withRetrieval(r))
	}
	return filtered, nil
}

// withRetrieval fills in the derived retrieval location stores do not keep.
func (service *CoreService) withRetrieval(r *database.PublishedRecord) *database.PublishedRecord {
	if r.RetrievalLocation == "" {
		r.RetrievalLocation = common.RetrievalURL(service.config.Origin, r.ID)
	}
	return r
}

// Stats counts photos for today, the last seven days and the last month, plus a
// per-day breakdown of the last seven days (oldest first).
func (service *CoreService) Stats(ctx context.Context) (*PhotoStats, error) {
	records, err := service.allPhotos(ctx)
	if err != nil {
		return nil, err
	}

	now := service.now().In(service.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, service.location)
	weekAgo := today.AddDate(0, 0, -7)
	monthAgo := time.Date(now.Year(), now.Month()-1, now.Day(), 0, 0, 0, 0, service.location)

	stats := &PhotoStats{Total: len(records)}
	daily := make(map[string]int, 7)
	for _, r := range records {
		created := r.CreatedAt.In(service.location)
		if !created.Before(today) {
			stats.Today++
		}
		if !created.Before(weekAgo) {
			stats.ThisWeek++
		}
		if !created.Before(monthAgo) {
			stats.ThisMonth++
		}
		daily[created.Format(dateLayout)]++
	}
	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(dateLayout)
		stats.Daily = append(stats.Daily, DailyCount{Date: day, Count: daily[day]})
	}
	return stats, nil
}

var exportHeader = []string{
	"id", "date", "createdAt", "fileName", "fileSizeBytes", "mimeType", "imageUrl", "downloadUrl", "retrievalCodeUrl",
}

// ExportFileName is the attachment name offered for an export made at now.
func (service *CoreService) ExportFileName() string {
	return "photos-" + service.now().In(service.location).Format(dateLayout) + ".csv"
}

// ExportCSV writes every record as CSV with all fields quoted.
func (service *CoreService) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := service.allPhotos(ctx)
	if err != nil {
		return err
	}
	if err := writeQuotedRow(w, exportHeader); err != nil {
		return err
	}
	for _, r := range records {
		r = service.withRetrieval(r)
		created := r.CreatedAt.In(service.location)
		row := []string{
			r.ID,
			created.Format(dateLayout),
			created.Format(time.RFC3339),
			r.FileName,
			strconv.FormatInt(r.FileSizeBytes, 10),
			r.MimeType,
			r.BinaryLocation,
			r.DownloadLocation,
			r.RetrievalLocation,
		}
		if err := writeQuotedRow(w, row); err != nil {
			return err
		}
	}
	return nil
}

func writeQuotedRow(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write export row: %w", err)
	}
	return nil
}
