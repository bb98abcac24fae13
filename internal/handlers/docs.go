package handlers

import (
	"encoding/json"
	"net/http"

	"climate-platform/internal/models"
)

const (
	apiTitle   = "Climate Platform API"
	apiVersion = "1.0.0"
)

func queryParam(name, description string, required bool, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      schema,
	}
}

func jsonContent(schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

func errorResponses(codes ...string) map[string]interface{} {
	descriptions := map[string]string{
		"400": "Invalid parameters",
		"404": "Station or archive not found",
		"502": "Upstream archive unavailable",
		"500": "Internal error",
	}
	out := make(map[string]interface{}, len(codes))
	for _, code := range codes {
		out[code] = map[string]interface{}{
			"description": descriptions[code],
			"content":     jsonContent(map[string]interface{}{"$ref": "#/components/schemas/Error"}),
		}
	}
	return out
}

func withOK(description string, schema map[string]interface{}, errs map[string]interface{}) map[string]interface{} {
	errs["200"] = map[string]interface{}{
		"description": description,
		"content":     jsonContent(schema),
	}
	return errs
}

// openAPIDocument builds the OpenAPI 3.0 description of the API
func openAPIDocument() map[string]interface{} {
	nullableNumber := map[string]interface{}{"type": "number", "nullable": true}
	yearParams := []map[string]interface{}{
		queryParam("start_year", "First year, inclusive. Must be given together with end_year", false, map[string]interface{}{"type": "integer", "minimum": models.MinYear, "maximum": models.MaxYear}),
		queryParam("end_year", "Last year, inclusive. Must be given together with start_year", false, map[string]interface{}{"type": "integer", "minimum": models.MinYear, "maximum": models.MaxYear}),
	}

	return map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       apiTitle,
			"description": "Station search and annual/seasonal temperature statistics built on demand from GHCN-Daily archives",
			"version":     apiVersion,
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			routeSearch: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Search stations",
					"description": "Stations within radius_km of a point, nearest first. Ties are broken by station_id.",
					"parameters": append([]map[string]interface{}{
						queryParam("lat", "Latitude in degrees", true, map[string]interface{}{"type": "number", "minimum": -90, "maximum": 90}),
						queryParam("lon", "Longitude in degrees", true, map[string]interface{}{"type": "number", "minimum": -180, "maximum": 180}),
						queryParam("radius_km", "Search radius in kilometres; non-positive yields no results", true, map[string]interface{}{"type": "number"}),
						queryParam("limit", "Maximum number of results, clamped to [1, 1000]", false, map[string]interface{}{"type": "integer", "default": 25}),
					}, yearParams...),
					"responses": withOK("Matching stations", map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"$ref": "#/components/schemas/StationMatch"},
					}, errorResponses("400", "500")),
				},
			},
			"/api/stations/{station_id}/temperatures": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Station temperature statistics",
					"description": "Annual and seasonal mean TMAX/TMIN rows sorted by (year, period). Winter of year Y spans December Y-1 to February Y.",
					"parameters": append([]map[string]interface{}{
						{
							"name":     "station_id",
							"in":       "path",
							"required": true,
							"schema":   map[string]string{"type": "string"},
						},
					}, yearParams...),
					"responses": withOK("Period statistics", map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"$ref": "#/components/schemas/PeriodStat"},
					}, errorResponses("400", "404", "502", "500")),
				},
			},
			routeReady: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Readiness",
					"description": "Reports whether the station reference table has been populated",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Ready",
							"content":     jsonContent(map[string]interface{}{"$ref": "#/components/schemas/Readiness"}),
						},
						"503": map[string]interface{}{
							"description": "Not ready or startup import failed",
							"content":     jsonContent(map[string]interface{}{"$ref": "#/components/schemas/Readiness"}),
						},
					},
				},
			},
			routeHealth: map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "API and store are reachable"},
						"503": map[string]interface{}{"description": "Store unreachable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Prometheus metrics",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{"schema": map[string]string{"type": "string"}},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"StationMatch": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"station_id":  map[string]string{"type": "string"},
						"name":        map[string]string{"type": "string"},
						"lat":         map[string]string{"type": "number"},
						"lon":         map[string]string{"type": "number"},
						"distance_km": map[string]string{"type": "number"},
					},
				},
				"PeriodStat": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"station_id": map[string]string{"type": "string"},
						"year":       map[string]string{"type": "integer"},
						"period": map[string]interface{}{
							"type": "string",
							"enum": []string{"annual", "autumn", "spring", "summer", "winter"},
						},
						"avg_tmax_c": nullableNumber,
						"avg_tmin_c": nullableNumber,
						"n_tmax":     map[string]string{"type": "integer"},
						"n_tmin":     map[string]string{"type": "integer"},
					},
				},
				"Readiness": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"ready": map[string]string{"type": "boolean"},
						"state": map[string]string{"type": "string"},
						"error": map[string]string{"type": "string"},
						"info": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"imported":       map[string]string{"type": "boolean"},
								"stations_count": map[string]string{"type": "integer"},
							},
						},
					},
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
					},
				},
			},
		},
	}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Climate Platform API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openAPIDocument())
}
