package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/cache"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

// AreaStore is the slice of the area repository the resolver depends on.
type AreaStore interface {
	ContainingAreas(ctx context.Context, lat, lon float64) (province, district, commune *models.AdministrativeArea, err error)
	ListAssignedCodes(ctx context.Context, level models.AdminLevel) ([]string, error)
	AssignCodeIfEmpty(ctx context.Context, id uuid.UUID, code string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.AdministrativeArea, error)
}

// LocationService resolves GPS coordinates to the province-district-commune
// hierarchy and its composite location code, assigning codes on first use.
type LocationService struct {
	store AreaStore
	cache *cache.LRU[string, models.LocationInfo]

	// assignMu serializes code assignment in this process; concurrent
	// resolvers in other processes are handled by the store's
	// compare-and-swap.
	assignMu sync.Mutex
}

func NewLocationService(store AreaStore, cacheSize int) *LocationService {
	return &LocationService{
		store: store,
		cache: cache.NewLRU[string, models.LocationInfo](cacheSize),
	}
}

// Resolve maps a coordinate pair to its LocationInfo. Results are cached by
// coordinate rounded to 6 decimal places, so repeated submissions from the
// same field skip the spatial query.
func (s *LocationService) Resolve(ctx context.Context, lat, lon float64) (*models.LocationInfo, error) {
	if !validCoordinates(lat, lon) {
		return nil, fmt.Errorf("%w: lat=%v lon=%v", models.ErrInvalidCoordinates, lat, lon)
	}

	key := cacheKey(lat, lon)
	if info, ok := s.cache.Get(key); ok {
		return &info, nil
	}

	province, district, commune, err := s.store.ContainingAreas(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if commune == nil || district == nil || province == nil {
		return nil, fmt.Errorf("%w: no commune contains (%.6f, %.6f)", models.ErrLocationNotFound, lat, lon)
	}

	provinceCode, err := s.ensureCode(ctx, province)
	if err != nil {
		return nil, err
	}
	districtCode, err := s.ensureCode(ctx, district)
	if err != nil {
		return nil, err
	}
	communeCode, err := s.ensureCode(ctx, commune)
	if err != nil {
		return nil, err
	}

	info := models.LocationInfo{
		LocationCode: fmt.Sprintf("%s-%s-%s", provinceCode, districtCode, communeCode),
		ProvinceName: province.NameEN,
		DistrictName: district.NameEN,
		CommuneName:  commune.NameEN,
	}

	s.cache.Set(key, info)
	return &info, nil
}

// ensureCode returns the area's code, generating and persisting one if the
// area has never been resolved before. Losing the assignment race is fine:
// the winner's code is re-read and used instead.
func (s *LocationService) ensureCode(ctx context.Context, area *models.AdministrativeArea) (string, error) {
	if area.Code != nil && *area.Code != "" {
		return *area.Code, nil
	}

	s.assignMu.Lock()
	defer s.assignMu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		assigned, err := s.store.ListAssignedCodes(ctx, area.Level)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}

		existing := make(map[string]bool, len(assigned))
		for _, code := range assigned {
			existing[code] = true
		}

		code := GenerateAreaCode(area.NameEN, existing)

		won, err := s.store.AssignCodeIfEmpty(ctx, area.ID, code)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		if won {
			slog.Info("assigned area code", "area_id", area.ID, "level", area.Level, "name", area.NameEN, "code", code)
			return code, nil
		}

		// Another resolver assigned first; use whatever it wrote.
		current, err := s.store.GetByID(ctx, area.ID)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		if current.Code != nil && *current.Code != "" {
			return *current.Code, nil
		}
	}

	return "", fmt.Errorf("failed to assign code for area %s", area.ID)
}

// CacheLen reports how many resolved coordinates are currently cached.
func (s *LocationService) CacheLen() int {
	return s.cache.Len()
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}
