package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// referenceLabel tags downloads that are not per-station archives
const referenceLabel = "reference"

// Default upstream locations
const (
	DefaultCompactBaseURL      = "https://noaa-ghcn-pds.s3.amazonaws.com/csv.gz/by_station"
	DefaultDailyBaseURL        = "https://www.ncei.noaa.gov/pub/data/ghcn/daily/all"
	DefaultStationsPrimaryURL  = "https://noaa-ghcn-pds.s3.amazonaws.com/ghcnd-stations.txt"
	DefaultStationsFallbackURL = "https://www.ncei.noaa.gov/pub/data/ghcn/daily/ghcnd-stations.txt"
)

// FetcherConfig holds upstream locations and network behaviour
type FetcherConfig struct {
	CompactBaseURL   string
	DailyBaseURL     string
	CacheDir         string
	Timeout          time.Duration
	MaxRetries       int
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

// Fetcher downloads raw archives and memoizes them on local disk.
// A non-empty local file is always served without touching the network.
type Fetcher struct {
	cfg      FetcherConfig
	client   *http.Client
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
}

// statusError is an unexpected upstream HTTP status
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// NewFetcher creates the cache directory and one circuit breaker per upstream.
// A nil client is replaced by one using cfg.Timeout.
func NewFetcher(cfg FetcherConfig, client *http.Client, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*Fetcher, error) {
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("archive cache directory is not configured")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	f := &Fetcher{
		cfg:      cfg,
		client:   client,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
		metrics:  metricsCollector,
	}
	for _, label := range []string{TierCompact.String(), TierDaily.String(), referenceLabel} {
		f.breakers[label] = f.newBreaker(label)
	}

	return f, nil
}

func (f *Fetcher) newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		IsSuccessful: func(err error) bool {
			var nf *NotFoundError
			return err == nil || errors.As(err, &nf) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn(context.Background(), "[ARCHIVE_BREAKER] Circuit breaker state changed", logging.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
}

// URL returns the upstream location of a station archive
func (f *Fetcher) URL(stationID string, tier Tier) string {
	base := f.cfg.DailyBaseURL
	if tier == TierCompact {
		base = f.cfg.CompactBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + stationID + tier.Extension()
}

// LocalPath returns the cache location of a station archive
func (f *Fetcher) LocalPath(stationID string, tier Tier) string {
	return filepath.Join(f.cfg.CacheDir, stationID+tier.Extension())
}

// Fetch returns the raw archive bytes for a station, downloading them once.
func (f *Fetcher) Fetch(ctx context.Context, stationID string, tier Tier) ([]byte, error) {
	path := f.LocalPath(stationID, tier)
	if data, ok := readCached(path); ok {
		f.metrics.RecordArchiveFetch(tier.String(), "local_hit")
		f.logger.Debug(ctx, "[ARCHIVE_CACHE_HIT] Serving archive from local cache", logging.Fields{
			"station_id": stationID,
			"tier":       tier.String(),
			"bytes":      len(data),
		})
		return data, nil
	}

	url := f.URL(stationID, tier)
	data, err := f.download(ctx, tier.String(), url, path)
	if err != nil {
		var nf *NotFoundError
		var fe *FetchError
		switch {
		case errors.As(err, &nf):
			nf.StationID, nf.Tier = stationID, tier
		case errors.As(err, &fe):
			fe.StationID, fe.Tier = stationID, tier
		}
		return nil, err
	}

	return data, nil
}

// FetchURL downloads an arbitrary upstream file into the cache directory
// under name, serving the cached copy when it is non-empty.
func (f *Fetcher) FetchURL(ctx context.Context, url, name string) ([]byte, error) {
	path := filepath.Join(f.cfg.CacheDir, name)
	if data, ok := readCached(path); ok {
		f.metrics.RecordArchiveFetch(referenceLabel, "local_hit")
		return data, nil
	}
	return f.download(ctx, referenceLabel, url, path)
}

// Evict removes the cached copy of a station archive
func (f *Fetcher) Evict(stationID string, tier Tier) error {
	if err := os.Remove(f.LocalPath(stationID, tier)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to evict archive: %w", err)
	}
	return nil
}

func readCached(path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// download streams url into a temporary file next to dest and renames it
// into place. No partial or zero-length file survives a failure.
func (f *Fetcher) download(ctx context.Context, label, url, dest string) ([]byte, error) {
	timer := f.metrics.NewTimer(f.metrics.ArchiveFetchDuration.WithLabelValues(label))

	resp, err := f.doWithResilience(ctx, label, url)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			f.metrics.RecordArchiveFetch(label, "not_found")
			f.logger.Info(ctx, "[ARCHIVE_NOT_FOUND] Upstream has no archive", logging.Fields{
				"url":  url,
				"tier": label,
			})
		} else {
			f.metrics.RecordArchiveFetch(label, "error")
			f.logger.Error(ctx, "[ARCHIVE_FETCH_ERROR] Archive download failed", logging.Fields{
				"url":  url,
				"tier": label,
			}, err)
		}
		_ = removeEmpty(dest)
		return nil, err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	var buf bytes.Buffer
	written, copyErr := io.Copy(io.MultiWriter(tmp, &buf), resp.Body)
	closeErr := tmp.Close()

	switch {
	case copyErr != nil:
		err = &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", copyErr)}
	case closeErr != nil:
		err = &FetchError{URL: url, Err: fmt.Errorf("failed to write archive: %w", closeErr)}
	case written == 0:
		err = &FetchError{URL: url, Err: errors.New("empty response body")}
	default:
		if renameErr := os.Rename(tmpName, dest); renameErr != nil {
			err = fmt.Errorf("failed to move archive into place: %w", renameErr)
		}
	}
	if err != nil {
		_ = os.Remove(tmpName)
		_ = removeEmpty(dest)
		f.metrics.RecordArchiveFetch(label, "error")
		f.logger.Error(ctx, "[ARCHIVE_FETCH_ERROR] Archive download failed", logging.Fields{
			"url":  url,
			"tier": label,
		}, err)
		return nil, err
	}

	duration := timer.ObserveDuration()
	f.metrics.RecordArchiveFetch(label, "downloaded")
	f.logger.Info(ctx, "[ARCHIVE_DOWNLOADED] Archive downloaded", logging.Fields{
		"url":         url,
		"tier":        label,
		"bytes":       written,
		"duration_ms": duration.Milliseconds(),
	})

	return buf.Bytes(), nil
}

// removeEmpty deletes a zero-length artifact at path, if any
func removeEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() > 0 {
		return nil
	}
	return os.Remove(path)
}

// doWithResilience performs a GET with retries, exponential backoff and the
// circuit breaker of label. A 404 is returned as NotFoundError without retry.
func (f *Fetcher) doWithResilience(ctx context.Context, label, url string) (*http.Response, error) {
	cb := f.breakers[label]

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: url, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &FetchError{URL: url, Err: err}
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, doErr := f.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if resp.StatusCode == http.StatusNotFound {
				resp.Body.Close()
				return nil, &NotFoundError{URL: url}
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				resp.Body.Close()
				return nil, &statusError{code: resp.StatusCode}
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, nf
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{URL: url, Err: fmt.Errorf("circuit breaker open: %w", err)}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &FetchError{URL: url, Err: ctxErr}
		}

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, &FetchError{URL: url, StatusCode: se.code, Err: se}
		}

		lastErr = err
		if attempt >= f.cfg.MaxRetries {
			break
		}

		delay := f.cfg.RetryInterval << attempt
		if f.cfg.MaxRetryInterval > 0 && delay > f.cfg.MaxRetryInterval {
			delay = f.cfg.MaxRetryInterval
		}

		f.logger.Warn(ctx, "[ARCHIVE_RETRY] Retrying archive download", logging.Fields{
			"url":      url,
			"attempt":  attempt + 1,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, &FetchError{URL: url, Err: ctx.Err()}
		case <-t.C:
		}
	}

	fe := &FetchError{URL: url, Err: lastErr}
	var se *statusError
	if errors.As(lastErr, &se) {
		fe.StatusCode = se.code
	}
	return nil, fe
}
