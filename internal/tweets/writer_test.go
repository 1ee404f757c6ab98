package tweets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"stickytweets/internal/model"
	"stickytweets/internal/store/sqlitedb"
)

var (
	tweetNoCoordinates = model.PostRecord{
		ID:   "339373061935603713",
		User: model.PostUser{ScreenName: "Test Tweeter"},
	}
	tweetWithCoordinates = model.PostRecord{
		ID:          "339373064867442688",
		Coordinates: &model.Coordinates{Type: "Point", Coordinates: []float64{-70.01739, 18.5339}},
		User:        model.PostUser{ScreenName: "Test Tweeter"},
	}
)

func newTestWriter(t *testing.T, limit int) (*Writer, *sqlitedb.DB) {
	t.Helper()
	db, err := sqlitedb.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	w, err := NewWriter(db, limit)
	if err != nil {
		t.Fatal(err)
	}
	return w, db
}

func geoRecord(id int64, createdAt time.Time) model.PostRecord {
	return model.PostRecord{
		ID:          json.Number(fmt.Sprint(id)),
		Text:        fmt.Sprintf("tweet %d", id),
		CreatedAt:   createdAt.UTC().Format(model.CreatedAtLayout),
		User:        model.PostUser{ScreenName: "Test Tweeter"},
		Coordinates: &model.Coordinates{Type: "Point", Coordinates: []float64{5.1, 52.09}},
	}
}

func count(t *testing.T, db *sqlitedb.DB) int {
	t.Helper()
	n, err := db.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestStoreNoCoordinates(t *testing.T) {
	w, db := newTestWriter(t, DefaultLimit)
	out, err := w.Store(context.Background(), tweetNoCoordinates)
	if err != nil {
		t.Fatal(err)
	}
	if out != Skipped || count(t, db) != 0 {
		t.Fatalf("expected nothing stored, got %s and %d rows", out, count(t, db))
	}
}

func TestStoreWithCoordinates(t *testing.T) {
	w, db := newTestWriter(t, DefaultLimit)
	ctx := context.Background()
	out, err := w.Store(ctx, tweetWithCoordinates)
	if err != nil {
		t.Fatal(err)
	}
	if out != Inserted || count(t, db) != 1 {
		t.Fatalf("expected one row, got %s and %d rows", out, count(t, db))
	}
	rows, _ := db.List(ctx)
	got := rows[0]
	if got.Geom == nil || got.Geom.Lon != -70.01739 || got.Geom.Lat != 18.5339 {
		t.Fatalf("point: %+v", got.Geom)
	}
	if got.StatusID != 339373064867442688 || got.TwitterName != "Test Tweeter" || !got.Visible {
		t.Fatalf("fields: %+v", got)
	}
	if !got.Time.IsZero() || got.MediaURL != "" {
		t.Fatalf("expected no time and no media: %+v", got)
	}
}

func TestOverwriteWithMoreThanLimit(t *testing.T) {
	w, db := newTestWriter(t, 3)
	for i := 0; i < 4; i++ {
		if _, err := w.Store(context.Background(), tweetWithCoordinates); err != nil {
			t.Fatal(err)
		}
	}
	if n := count(t, db); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

func TestSizeIsMinOfPreviousPlusOneAndLimit(t *testing.T) {
	const limit = 5
	w, db := newTestWriter(t, limit)
	base := time.Date(2013, 5, 29, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		prev := count(t, db)
		if _, err := w.Store(context.Background(), geoRecord(int64(i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
		want := prev + 1
		if want > limit {
			want = limit
		}
		if got := count(t, db); got != want {
			t.Fatalf("after store %d: size %d, want %d", i, got, want)
		}
	}
}

func TestEvictsOldestByTimestamp(t *testing.T) {
	w, db := newTestWriter(t, 3)
	ctx := context.Background()
	base := time.Date(2013, 5, 29, 10, 0, 0, 0, time.UTC)
	// insertion order differs from timestamp order
	for _, rec := range []model.PostRecord{
		geoRecord(1, base.Add(2*time.Hour)),
		geoRecord(2, base),
		geoRecord(3, base.Add(time.Hour)),
	} {
		if _, err := w.Store(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	out, err := w.Store(ctx, geoRecord(4, base.Add(3*time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if out != Evicted {
		t.Fatalf("expected eviction, got %s", out)
	}
	rows, _ := db.List(ctx)
	seen := map[int64]int64{}
	for _, r := range rows {
		seen[r.StatusID] = r.ID
	}
	if _, ok := seen[2]; ok {
		t.Fatalf("oldest status 2 should be gone: %v", seen)
	}
	// the evicted row's primary key is reused
	if seen[4] != 2 {
		t.Fatalf("status 4 should reuse row 2, got %v", seen)
	}
}

func TestLoweredLimitTrimsSurplus(t *testing.T) {
	w, db := newTestWriter(t, 10)
	ctx := context.Background()
	base := time.Date(2013, 5, 29, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		if _, err := w.Store(ctx, geoRecord(int64(i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	small, err := NewWriter(db, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := small.Store(ctx, geoRecord(100, base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if n := count(t, db); n != 3 {
		t.Fatalf("expected trim to 3, got %d", n)
	}
	rows, _ := db.List(ctx)
	for _, r := range rows {
		if r.StatusID < 4 && r.StatusID != 100 {
			t.Fatalf("old status %d survived", r.StatusID)
		}
	}
}

func TestMediaURLIsBestEffort(t *testing.T) {
	w, db := newTestWriter(t, DefaultLimit)
	ctx := context.Background()
	rec := geoRecord(1, time.Now())
	rec.Entities = json.RawMessage(`{"media":[{"media_url":"http://pbs.twimg.com/media/x.jpg"}]}`)
	broken := geoRecord(2, time.Now())
	broken.Entities = json.RawMessage(`{"media":{"oops":true}}`)
	for _, r := range []model.PostRecord{rec, broken} {
		if _, err := w.Store(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	rows, _ := db.List(ctx)
	if rows[0].MediaURL != "http://pbs.twimg.com/media/x.jpg" || rows[1].MediaURL != "" {
		t.Fatalf("media urls: %q %q", rows[0].MediaURL, rows[1].MediaURL)
	}
}

func TestStoreRejectsMalformedInput(t *testing.T) {
	w, db := newTestWriter(t, DefaultLimit)
	ctx := context.Background()

	badTime := geoRecord(1, time.Now())
	badTime.CreatedAt = "2013-05-29 10:00:00"
	if _, err := w.Store(ctx, badTime); !errors.Is(err, ErrBadTimestamp) {
		t.Fatalf("expected ErrBadTimestamp, got %v", err)
	}

	badID := geoRecord(1, time.Now())
	badID.ID = "3.5"
	if _, err := w.Store(ctx, badID); !errors.Is(err, ErrBadStatusID) {
		t.Fatalf("expected ErrBadStatusID, got %v", err)
	}

	badPoint := geoRecord(1, time.Now())
	badPoint.Coordinates = &model.Coordinates{Coordinates: []float64{5.1}}
	if _, err := w.Store(ctx, badPoint); !errors.Is(err, ErrBadCoordinates) {
		t.Fatalf("expected ErrBadCoordinates, got %v", err)
	}

	if n := count(t, db); n != 0 {
		t.Fatalf("failed stores must not write, got %d rows", n)
	}
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	w, db := newTestWriter(t, DefaultLimit)
	ctx := context.Background()
	now := time.Now()
	for _, id := range []int64{1, 2, 1, 3, 2, 1} {
		if _, err := w.Store(ctx, geoRecord(id, now)); err != nil {
			t.Fatal(err)
		}
	}
	removed, err := w.Deduplicate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 || count(t, db) != 3 {
		t.Fatalf("removed %d, left %d", removed, count(t, db))
	}
	first, _ := db.List(ctx)
	removed, err = w.Deduplicate(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("second pass: %d %v", removed, err)
	}
	second, _ := db.List(ctx)
	if len(first) != len(second) {
		t.Fatalf("state changed between passes")
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].StatusID != second[i].StatusID {
			t.Fatalf("row %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestNewWriterRejectsNonPositiveLimit(t *testing.T) {
	for _, l := range []int{0, -1} {
		if _, err := NewWriter(nil, l); !errors.Is(err, ErrInvalidLimit) {
			t.Fatalf("limit %d: expected ErrInvalidLimit, got %v", l, err)
		}
	}
}

type failingTable struct{ Table }

func (failingTable) Count(ctx context.Context) (int, error) { return 0, errors.New("disk gone") }

func TestStorageErrorsPropagate(t *testing.T) {
	w, err := NewWriter(failingTable{}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Store(context.Background(), tweetWithCoordinates); err == nil {
		t.Fatal("expected storage error")
	}
}
