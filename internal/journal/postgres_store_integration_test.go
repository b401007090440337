//go:build postgres

package journal

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("BITRIVER_ORIGIN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BITRIVER_ORIGIN_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, PostgresConfig{DSN: dsn, ApplicationName: "bitriver-origin-test", QueryTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer store.Close(ctx)

	cid := int(time.Now().UnixNano() % 1_000_000_000)
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, kind := range []string{"start", "terminate", "dispose"} {
		entry := Entry{Kind: kind, Label: "integration", CID: cid, OccurredAt: base.Add(time.Duration(i) * time.Millisecond)}
		if kind == "terminate" {
			entry.Code = 1078
			entry.Message = "interrupted"
		}
		if err := store.Append(ctx, entry); err != nil {
			t.Fatalf("Append %s: %v", kind, err)
		}
	}

	entries, err := store.ListByCID(ctx, cid)
	if err != nil {
		t.Fatalf("ListByCID: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Kind != "terminate" || entries[1].Code != 1078 || entries[1].Message != "interrupted" {
		t.Fatalf("unexpected terminate entry %+v", entries[1])
	}
	if !entries[0].OccurredAt.Equal(base) {
		t.Fatalf("OccurredAt = %v, want %v", entries[0].OccurredAt, base)
	}
}
