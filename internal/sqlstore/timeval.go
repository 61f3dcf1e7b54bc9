package sqlstore

import (
	"fmt"
	"time"
)

// timeValue scans a timestamp stored either natively or as RFC 3339 text.
type timeValue struct {
	t *time.Time
}

func (v timeValue) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v.t = time.Time{}
	case time.Time:
		*v.t = s.UTC()
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (v timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	*v.t = t.UTC()
	return nil
}
