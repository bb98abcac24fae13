// Package archive downloads, caches and decodes per-station daily
// temperature archives from the two upstream tiers.
package archive

// Tier identifies an upstream archive layout.
type Tier int

const (
	// TierCompact is the gzip-compressed columnar archive ({id}.csv.gz)
	TierCompact Tier = 1
	// TierDaily is the fixed-width archive ({id}.dly)
	TierDaily Tier = 2
)

// String returns the metric and log label of the tier
func (t Tier) String() string {
	switch t {
	case TierCompact:
		return "compact"
	case TierDaily:
		return "daily"
	default:
		return "unknown"
	}
}

// Extension returns the file suffix used upstream and in the local cache
func (t Tier) Extension() string {
	switch t {
	case TierCompact:
		return ".csv.gz"
	case TierDaily:
		return ".dly"
	default:
		return ".bin"
	}
}
