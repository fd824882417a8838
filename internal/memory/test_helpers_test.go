package memory

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustThreadID(t *testing.T, value string) ThreadID {
	t.Helper()
	id, err := NewThreadID(value)
	if err != nil {
		t.Fatalf("unexpected thread id error: %v", err)
	}
	return id
}

func mustTimestamp(t *testing.T, value int64) UnixTimestamp {
	t.Helper()
	ts, err := NewUnixTimestamp(value)
	if err != nil {
		t.Fatalf("unexpected timestamp error: %v", err)
	}
	return ts
}

// manualClock lets tests advance store time explicitly between appends.
type manualClock struct {
	current time.Time
}

func (c *manualClock) Now() time.Time {
	return c.current
}

func (c *manualClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestStore(t *testing.T) (*Store, *manualClock, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:minuted_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Meeting{}, &ActionItem{}, &Decision{}, &CalendarMirror{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &manualClock{current: time.Unix(1756600000, 0).UTC()}
	store, err := NewStore(StoreConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, clock, db
}

func strptr(value string) *string {
	return &value
}
