package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"climate-platform/internal/archive"
	"climate-platform/internal/models"
	"climate-platform/internal/repository"
	"climate-platform/internal/services"
	"climate-platform/pkg/logging"
	"climate-platform/pkg/metrics"
)

// Route templates, also used as metric labels
const (
	routeSearch       = "/api/stations/search"
	routeTemperatures = "/api/stations/{station_id}/temperatures"
	routeReady        = "/api/ready"
	routeHealth       = "/health"
	routeDocs         = "/api/docs"
	routeOpenAPI      = "/api/docs/openapi.json"
)

// StationSearcher finds stations near a point
type StationSearcher interface {
	Search(ctx context.Context, req services.SearchRequest) ([]services.StationMatch, error)
}

// TemperatureReader returns period statistics for a station
type TemperatureReader interface {
	GetStationTemperatures(ctx context.Context, stationID string, startYear, endYear *int) ([]*models.PeriodStat, error)
}

// ReadinessReporter exposes the startup import state
type ReadinessReporter interface {
	Status() services.ReadinessStatus
}

// HealthChecker reports whether the store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ClimateHandler handles the station and temperature API endpoints
type ClimateHandler struct {
	search    StationSearcher
	temps     TemperatureReader
	readiness ReadinessReporter
	health    HealthChecker
	validate  *validator.Validate
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewClimateHandler creates a new climate handler
func NewClimateHandler(
	search StationSearcher,
	temps TemperatureReader,
	readiness ReadinessReporter,
	health HealthChecker,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ClimateHandler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "" {
			return fld.Name
		}
		return name
	})

	return &ClimateHandler{
		search:    search,
		temps:     temps,
		readiness: readiness,
		health:    health,
		validate:  validate,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// searchQuery holds the query parameters of the search endpoint
type searchQuery struct {
	Lat       *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon       *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
	RadiusKm  *float64 `query:"radius_km" validate:"required"`
	Limit     *int     `query:"limit"`
	StartYear *int     `query:"start_year" validate:"omitempty,gte=1700,lte=2200"`
	EndYear   *int     `query:"end_year" validate:"omitempty,gte=1700,lte=2200"`
}

// temperatureQuery holds the parameters of the temperatures endpoint
type temperatureQuery struct {
	StationID string `query:"station_id" validate:"required"`
	StartYear *int   `query:"start_year" validate:"omitempty,gte=1700,lte=2200"`
	EndYear   *int   `query:"end_year" validate:"omitempty,gte=1700,lte=2200"`
}

// SearchStations handles GET /api/stations/search
func (h *ClimateHandler) SearchStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var q searchQuery
	if err := h.bindSearch(r, &q); err != nil {
		h.sendError(w, r, routeSearch, err)
		return
	}

	req := services.SearchRequest{
		Lat:       *q.Lat,
		Lon:       *q.Lon,
		RadiusKm:  *q.RadiusKm,
		Limit:     services.DefaultSearchLimit,
		StartYear: q.StartYear,
		EndYear:   q.EndYear,
	}
	if q.Limit != nil {
		req.Limit = services.ClampLimit(*q.Limit)
	}

	matches, err := h.search.Search(ctx, req)
	if err != nil {
		h.sendError(w, r, routeSearch, err)
		return
	}

	h.sendJSON(w, r, routeSearch, matches, http.StatusOK)
}

// GetTemperatures handles GET /api/stations/{station_id}/temperatures
func (h *ClimateHandler) GetTemperatures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := temperatureQuery{StationID: mux.Vars(r)["station_id"]}
	values := r.URL.Query()
	var err error
	if q.StartYear, err = optionalInt(values.Get("start_year"), "start_year"); err != nil {
		h.sendError(w, r, routeTemperatures, err)
		return
	}
	if q.EndYear, err = optionalInt(values.Get("end_year"), "end_year"); err != nil {
		h.sendError(w, r, routeTemperatures, err)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		h.sendError(w, r, routeTemperatures, toValidationError(err))
		return
	}

	stats, err := h.temps.GetStationTemperatures(ctx, q.StationID, q.StartYear, q.EndYear)
	if err != nil {
		h.sendError(w, r, routeTemperatures, err)
		return
	}

	h.sendJSON(w, r, routeTemperatures, stats, http.StatusOK)
}

// Ready handles GET /api/ready
func (h *ClimateHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.readiness.Status()

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	h.sendJSON(w, r, routeReady, status, code)
}

// HealthCheck handles GET /health
func (h *ClimateHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if h.health != nil {
		if err := h.health.HealthCheck(ctx); err != nil {
			h.logger.Warn(ctx, "[HEALTH_CHECK] Store unreachable", logging.Fields{
				"error": err.Error(),
			})
			status["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, r, routeHealth, status, code)
}

func (h *ClimateHandler) bindSearch(r *http.Request, q *searchQuery) error {
	values := r.URL.Query()

	var err error
	if q.Lat, err = optionalFloat(values.Get("lat"), "lat"); err != nil {
		return err
	}
	if q.Lon, err = optionalFloat(values.Get("lon"), "lon"); err != nil {
		return err
	}
	if q.RadiusKm, err = optionalFloat(values.Get("radius_km"), "radius_km"); err != nil {
		return err
	}
	if q.Limit, err = optionalInt(values.Get("limit"), "limit"); err != nil {
		return err
	}
	if q.StartYear, err = optionalInt(values.Get("start_year"), "start_year"); err != nil {
		return err
	}
	if q.EndYear, err = optionalInt(values.Get("end_year"), "end_year"); err != nil {
		return err
	}

	if err := h.validate.Struct(q); err != nil {
		return toValidationError(err)
	}
	return nil
}

func optionalFloat(raw, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &models.ValidationError{Field: field, Value: raw, Message: fmt.Sprintf("%s must be a number", field)}
	}
	return &v, nil
}

func optionalInt(raw, field string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &models.ValidationError{Field: field, Value: raw, Message: fmt.Sprintf("%s must be an integer", field)}
	}
	return &v, nil
}

// toValidationError reports the first failed constraint as a ValidationError
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &models.ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "gte", "lte":
		msg = fmt.Sprintf("%s is out of range", fe.Field())
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return &models.ValidationError{Field: fe.Field(), Value: fmt.Sprint(fe.Value()), Message: msg}
}

// classify maps an error to its HTTP status and metric label
func classify(err error) (int, string) {
	var validationErr *models.ValidationError
	var archiveNotFound *archive.NotFoundError
	var repoNotFound *repository.NotFoundError
	var fetchErr *archive.FetchError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "validation_error"
	case errors.As(err, &archiveNotFound), errors.As(err, &repoNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// sendJSON sends a JSON response
func (h *ClimateHandler) sendJSON(w http.ResponseWriter, r *http.Request, endpoint string, data interface{}, statusCode int) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error(r.Context(), "[API_ENCODE_ERROR] Failed to encode response", logging.Fields{
			"endpoint": endpoint,
		}, err)
	}
}

// sendError maps err to a status code and sends an error response
func (h *ClimateHandler) sendError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	ctx := r.Context()
	statusCode, errorType := classify(err)
	h.metrics.RecordAPIError(errorType, endpoint)

	message := err.Error()
	switch statusCode {
	case http.StatusInternalServerError:
		h.logger.Error(ctx, "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
			"path":     r.URL.Path,
		}, err)
		message = "internal server error"
	case http.StatusBadGateway:
		h.logger.Warn(ctx, "[API_UPSTREAM_ERROR] Upstream archive unavailable", logging.Fields{
			"endpoint": endpoint,
			"path":     r.URL.Path,
			"error":    err.Error(),
		})
		message = "upstream archive unavailable"
	}

	h.sendJSON(w, r, endpoint, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// RegisterRoutes registers all climate API routes
func (h *ClimateHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestIDMiddleware)

	router.Handle(routeSearch, h.timed(routeSearch, h.SearchStations)).Methods(http.MethodGet)
	router.Handle(routeTemperatures, h.timed(routeTemperatures, h.GetTemperatures)).Methods(http.MethodGet)
	router.Handle(routeReady, h.timed(routeReady, h.Ready)).Methods(http.MethodGet)
	router.HandleFunc(routeHealth, h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc(routeDocs, SwaggerUI).Methods(http.MethodGet)
	router.HandleFunc(routeOpenAPI, OpenAPISpec).Methods(http.MethodGet)
}

// timed records the request duration for endpoint
func (h *ClimateHandler) timed(endpoint string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues(endpoint))
		defer timer.ObserveDuration()
		next(w, r)
	})
}
