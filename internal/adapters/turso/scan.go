package turso

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/util"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseDate(s string) (time.Time, error) {
	t, err := util.ParseDateSQLite(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

func parseTime(s string) time.Time {
	return util.ParseTimeSQLite(s)
}

func boolInt(b bool) int64 {
	return util.BoolToInt64(b)
}

func nullString(s *string) sql.NullString {
	return util.NullStringPtr(s)
}

func stringPtr(ns sql.NullString) *string {
	return util.NullStringToPtr(ns)
}
