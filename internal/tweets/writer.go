// Package tweets keeps a capacity-bounded set of geotagged tweets.
package tweets

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"stickytweets/internal/model"
)

// DefaultLimit is the capacity used when none is configured.
const DefaultLimit = 3000

var (
	ErrInvalidLimit   = errors.New("limit must be positive")
	ErrBadStatusID    = errors.New("status id is not an integer")
	ErrBadTimestamp   = errors.New("created_at does not match " + model.CreatedAtLayout)
	ErrBadCoordinates = errors.New("coordinates need longitude and latitude")
)

// Table is the persistent record table the writer depends on.
type Table interface {
	Count(ctx context.Context) (int, error)
	OldestIDs(ctx context.Context, n int) ([]int64, error)
	Insert(ctx context.Context, t *model.StickyTweet) error
	Overwrite(ctx context.Context, id int64, t *model.StickyTweet) error
	Delete(ctx context.Context, ids ...int64) (int, error)
	DeleteDuplicates(ctx context.Context) (int, error)
}

// Outcome reports what Store did with a record.
type Outcome int

const (
	Skipped Outcome = iota // no coordinates
	Inserted
	Evicted // oldest row overwritten
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Evicted:
		return "evicted"
	default:
		return "skipped"
	}
}

// Writer stores geotagged records, never holding more than limit rows.
type Writer struct {
	table Table
	limit int
}

func NewWriter(table Table, limit int) (*Writer, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	return &Writer{table: table, limit: limit}, nil
}

func (w *Writer) Limit() int { return w.limit }

// Store converts rec into at most one stored tweet. Records without
// coordinates are dropped without error. At capacity the oldest row is
// evicted before the new one is written, so the table never exceeds limit.
func (w *Writer) Store(ctx context.Context, rec model.PostRecord) (Outcome, error) {
	if rec.Coordinates == nil {
		return Skipped, nil
	}
	t, err := fromRecord(rec)
	if err != nil {
		return Skipped, err
	}
	n, err := w.table.Count(ctx)
	if err != nil {
		return Skipped, fmt.Errorf("count stored tweets: %w", err)
	}
	if n < w.limit {
		if err := w.table.Insert(ctx, &t); err != nil {
			return Skipped, fmt.Errorf("insert status %d: %w", t.StatusID, err)
		}
		return Inserted, nil
	}

	// n-limit+1 rows must go: one is reused in place, any surplus (left by a
	// lowered limit) is deleted.
	ids, err := w.table.OldestIDs(ctx, n-w.limit+1)
	if err != nil {
		return Skipped, fmt.Errorf("select oldest: %w", err)
	}
	if len(ids) == 0 {
		if err := w.table.Insert(ctx, &t); err != nil {
			return Skipped, fmt.Errorf("insert status %d: %w", t.StatusID, err)
		}
		return Inserted, nil
	}
	if surplus := ids[1:]; len(surplus) > 0 {
		if _, err := w.table.Delete(ctx, surplus...); err != nil {
			return Skipped, fmt.Errorf("trim to limit: %w", err)
		}
	}
	if err := w.table.Overwrite(ctx, ids[0], &t); err != nil {
		return Skipped, fmt.Errorf("overwrite oldest %d: %w", ids[0], err)
	}
	return Evicted, nil
}

// Deduplicate leaves one row per status id and returns how many were removed.
// Running it again removes nothing.
func (w *Writer) Deduplicate(ctx context.Context) (int, error) {
	n, err := w.table.DeleteDuplicates(ctx)
	if err != nil {
		return n, fmt.Errorf("delete duplicates: %w", err)
	}
	return n, nil
}

func fromRecord(rec model.PostRecord) (model.StickyTweet, error) {
	var t model.StickyTweet
	id, err := strconv.ParseInt(rec.ID.String(), 10, 64)
	if err != nil {
		return t, fmt.Errorf("%w: %q", ErrBadStatusID, rec.ID.String())
	}
	if len(rec.Coordinates.Coordinates) < 2 {
		return t, fmt.Errorf("%w: status %d has %v", ErrBadCoordinates, id, rec.Coordinates.Coordinates)
	}
	t = model.StickyTweet{
		TwitterName: rec.User.ScreenName,
		StatusID:    id,
		Tweet:       rec.Text,
		Visible:     true,
		Geom:        &model.Point{Lon: rec.Coordinates.Coordinates[0], Lat: rec.Coordinates.Coordinates[1]},
	}
	if rec.CreatedAt != "" {
		ts, err := model.ParseCreatedAt(rec.CreatedAt)
		if err != nil {
			return t, fmt.Errorf("%w: status %d: %v", ErrBadTimestamp, id, err)
		}
		t.Time = ts
	}
	if u, ok := rec.MediaURL(); ok {
		t.MediaURL = u
	}
	return t, nil
}
