package models

import (
	"time"

	"github.com/google/uuid"
)

// AdministrativeArea is one level of the province -> district -> commune
// hierarchy. Boundaries are owned by the GIS import pipeline; this service
// only ever writes the short code, once, on first resolution.
type AdministrativeArea struct {
	ID        uuid.UUID            `json:"id" db:"id"`
	Level     AdminLevel           `json:"level" db:"level"`
	NameEN    string               `json:"name_en" db:"name_en"`
	NameKM    *string              `json:"name_km,omitempty" db:"name_km"`
	Code      *string              `json:"code,omitempty" db:"code"`
	ParentID  *uuid.UUID           `json:"parent_id,omitempty" db:"parent_id"`
	Boundary  *GeoJSONMultiPolygon `json:"boundary,omitempty" db:"boundary"`
	CreatedAt time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt time.Time            `json:"updated_at" db:"updated_at"`
}

// LocationInfo is the result of resolving a coordinate: the composite
// location code plus the English names of the three enclosing areas.
type LocationInfo struct {
	LocationCode string `json:"location_code"`
	ProvinceName string `json:"province_name"`
	DistrictName string `json:"district_name"`
	CommuneName  string `json:"commune_name"`
}

// ProvinceCode returns the first segment of the composite code, used as the
// top-level archive folder name.
func (l *LocationInfo) ProvinceCode() string {
	for i := 0; i < len(l.LocationCode); i++ {
		if l.LocationCode[i] == '-' {
			return l.LocationCode[:i]
		}
	}
	return l.LocationCode
}
