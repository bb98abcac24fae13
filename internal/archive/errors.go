package archive

import "fmt"

// NotFoundError is returned when upstream answers 404 for an archive.
// It is distinct from a missing local file, which simply triggers a download.
type NotFoundError struct {
	StationID string
	Tier      Tier
	URL       string
}

func (e *NotFoundError) Error() string {
	if e.StationID == "" {
		return fmt.Sprintf("archive not found: %s", e.URL)
	}
	return fmt.Sprintf("%s archive not found for station %s", e.Tier, e.StationID)
}

// IsTransient returns false as a missing archive will not appear on retry
func (e *NotFoundError) IsTransient() bool {
	return false
}

// FetchError wraps a network or upstream failure that survived the retries.
type FetchError struct {
	StationID  string
	Tier       Tier
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s: upstream status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransient returns true as fetch failures may succeed later
func (e *FetchError) IsTransient() bool {
	return true
}

// ParseError is returned when an archive cannot be decoded at all.
// Individual malformed rows never produce it.
type ParseError struct {
	StationID string
	Tier      Tier
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s archive for station %s: %v", e.Tier, e.StationID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsTransient returns false; the cached copy is evicted instead
func (e *ParseError) IsTransient() bool {
	return false
}
