package db

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestParseUUID(t *testing.T) {
	t.Parallel()
	id, err := ParseUUID("  11111111-2222-3333-4444-555555555555 ")
	if err != nil {
		t.Fatalf("ParseUUID: %v", err)
	}
	if !id.Valid {
		t.Fatalf("parsed uuid not valid")
	}
	if _, err := ParseUUID("not-a-uuid"); err == nil {
		t.Fatalf("ParseUUID accepted garbage")
	}
}

func TestTextConversions(t *testing.T) {
	t.Parallel()
	if got := TextToString(pgtype.Text{String: "thread-1", Valid: true}); got != "thread-1" {
		t.Fatalf("TextToString = %q", got)
	}
	if got := TextToString(pgtype.Text{}); got != "" {
		t.Fatalf("TextToString(null) = %q", got)
	}

	if got := ToPgText("  value  "); !got.Valid || got.String != "value" {
		t.Fatalf("ToPgText = %+v", got)
	}
	if got := ToPgText("   "); got.Valid {
		t.Fatalf("ToPgText(blank) = %+v, want NULL", got)
	}
}
