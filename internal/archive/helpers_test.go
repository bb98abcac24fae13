package archive

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"climate-platform/internal/testutil"
)

const (
	testCompactBase = "https://archive.test/csv.gz/by_station"
	testDailyBase   = "https://archive.test/ghcn/daily/all"
)

// day is one slot of a fixed-width record
type day struct {
	value int
	qflag string
}

// dailyLine renders a fixed-width record; days beyond len(days) are missing
func dailyLine(stationID string, year, month int, element string, days ...day) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-11s%04d%02d%-4s", stationID, year, month, element)
	for i := 0; i < dailyDays; i++ {
		d := day{value: -9999, qflag: " "}
		if i < len(days) {
			d = days[i]
		}
		q := d.qflag
		if q == "" {
			q = " "
		}
		fmt.Fprintf(&b, "%5d %s ", d.value, q)
	}
	return b.String()
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// newTestFetcher returns a fetcher whose client is backed by a mock transport
func newTestFetcher(t *testing.T) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	client := &http.Client{Transport: transport, Timeout: time.Second}

	f, err := NewFetcher(FetcherConfig{
		CompactBaseURL:   testCompactBase,
		DailyBaseURL:     testDailyBase + "/",
		CacheDir:         t.TempDir(),
		Timeout:          time.Second,
		MaxRetries:       2,
		RetryInterval:    time.Millisecond,
		MaxRetryInterval: 5 * time.Millisecond,
	}, client, testutil.NewLogger(), testutil.NewMetrics())
	require.NoError(t, err)

	return f, transport
}
