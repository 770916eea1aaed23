package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// GeoJSONPoint represents a GeoJSON Point type for API input/output
type GeoJSONPoint struct {
	Type        string    `json:"type" binding:"required,eq=Point"`
	Coordinates []float64 `json:"coordinates" binding:"required,len=2"`
}

// NewGeoJSONPoint builds a point from a lon/lat pair (GeoJSON axis order).
func NewGeoJSONPoint(lon, lat float64) *GeoJSONPoint {
	return &GeoJSONPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

// Value implements the driver.Valuer interface for GeoJSONPoint
// Converts GeoJSON to WKT for PostGIS GEOMETRY(Point, 4326)
//
// GeoJSON -> geom.Point -> "SRID=4326;POINT(104.9282 11.5564)"
func (g *GeoJSONPoint) Value() (driver.Value, error) {
	if g == nil || g.Type == "" {
		return nil, nil
	}

	geoJSONBytes, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}

	var geometry geom.T
	if err := geojson.Unmarshal(geoJSONBytes, &geometry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal GeoJSON: %w", err)
	}

	point, ok := geometry.(*geom.Point)
	if !ok {
		return nil, fmt.Errorf("geometry is not a Point")
	}

	point.SetSRID(4326)

	wktString, err := wkt.Marshal(point)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to WKT: %w", err)
	}

	return fmt.Sprintf("SRID=%d;%s", point.SRID(), wktString), nil
}

// Scan implements the sql.Scanner interface for GeoJSONPoint
// Converts PostGIS GEOMETRY to GeoJSON
func (g *GeoJSONPoint) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan GeoJSONPoint: expected []byte, got %T", value)
	}

	geometry, err := ewkb.Unmarshal(bytes)
	if err != nil {
		return fmt.Errorf("failed to unmarshal EWKB: %w", err)
	}

	point, ok := geometry.(*geom.Point)
	if !ok {
		return fmt.Errorf("scanned geometry is not a Point")
	}

	geoJSONBytes, err := geojson.Marshal(point)
	if err != nil {
		return fmt.Errorf("failed to marshal to GeoJSON: %w", err)
	}

	return json.Unmarshal(geoJSONBytes, g)
}

// GeoJSONMultiPolygon represents a GeoJSON MultiPolygon for administrative
// boundaries. Commune boundaries are frequently multipart (river splits,
// enclaves), so single polygons are promoted to a one-element multipolygon
// on scan.
type GeoJSONMultiPolygon struct {
	Type        string          `json:"type" binding:"required,eq=MultiPolygon"`
	Coordinates [][][][]float64 `json:"coordinates" binding:"required"`
}

// Value implements the driver.Valuer interface for GeoJSONMultiPolygon
// Converts GeoJSON to WKT for PostGIS GEOMETRY(MultiPolygon, 4326)
func (g *GeoJSONMultiPolygon) Value() (driver.Value, error) {
	if g == nil || g.Type == "" {
		return nil, nil
	}

	geoJSONBytes, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}

	var geometry geom.T
	if err := geojson.Unmarshal(geoJSONBytes, &geometry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal GeoJSON: %w", err)
	}

	multiPolygon, ok := geometry.(*geom.MultiPolygon)
	if !ok {
		return nil, fmt.Errorf("geometry is not a MultiPolygon")
	}

	multiPolygon.SetSRID(4326)

	wktString, err := wkt.Marshal(multiPolygon)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to WKT: %w", err)
	}

	return fmt.Sprintf("SRID=%d;%s", multiPolygon.SRID(), wktString), nil
}

// Scan implements the sql.Scanner interface for GeoJSONMultiPolygon
func (g *GeoJSONMultiPolygon) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan GeoJSONMultiPolygon: expected []byte, got %T", value)
	}

	geometry, err := ewkb.Unmarshal(bytes)
	if err != nil {
		return fmt.Errorf("failed to unmarshal EWKB: %w", err)
	}

	var multiPolygon *geom.MultiPolygon
	switch geo := geometry.(type) {
	case *geom.MultiPolygon:
		multiPolygon = geo
	case *geom.Polygon:
		multiPolygon = geom.NewMultiPolygon(geom.XY).SetSRID(geo.SRID())
		if err := multiPolygon.Push(geo); err != nil {
			return fmt.Errorf("failed to promote Polygon to MultiPolygon: %w", err)
		}
	default:
		return fmt.Errorf("scanned geometry is not a MultiPolygon")
	}

	geoJSONBytes, err := geojson.Marshal(multiPolygon)
	if err != nil {
		return fmt.Errorf("failed to marshal to GeoJSON: %w", err)
	}

	return json.Unmarshal(geoJSONBytes, g)
}
