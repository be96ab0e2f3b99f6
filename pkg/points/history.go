package points

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HistoryCursor marks the oldest entry of a page; the next page starts strictly before it.
type HistoryCursor struct {
	CreatedAt time.Time
	EntryID   EntryID
}

// Encode renders the cursor as an opaque token.
func (cursor HistoryCursor) Encode() string {
	raw := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + historyCursorSeparator + cursor.EntryID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeHistoryCursor parses a token produced by Encode. An empty token yields nil.
func DecodeHistoryCursor(token string) (*HistoryCursor, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrInvalidCursor)
	}
	nanosPart, idPart, found := strings.Cut(string(decoded), historyCursorSeparator)
	if !found {
		return nil, fmt.Errorf("%w: malformed", ErrInvalidCursor)
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed timestamp", ErrInvalidCursor)
	}
	entryID, err := NewEntryID(idPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &HistoryCursor{CreatedAt: time.Unix(0, nanos).UTC(), EntryID: entryID}, nil
}

// HistoryQuery selects a page of a member's ledger.
type HistoryQuery struct {
	MemberID MemberID
	Limit    int
	Cursor   string
}

// HistoryPage is one page of entries, newest first.
type HistoryPage struct {
	Entries    []Entry
	NextCursor string
}

func normalizeHistoryLimit(limit int) (int, error) {
	if limit == 0 {
		return defaultHistoryLimit, nil
	}
	if limit < 0 || limit > maxHistoryLimit {
		return 0, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, maxHistoryLimit)
	}
	return limit, nil
}
