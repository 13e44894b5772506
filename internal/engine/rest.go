package engine

import (
	"math"
	"time"

	"github.com/courtdata/feature-engine/internal/models"
)

const earthRadiusKM = 6371.0

// RestCalculator derives rest and fatigue signals from the temporal
// index: days since the previous game, back-to-back flag, recent game
// density, and travel distance from the previous game's venue.
type RestCalculator struct {
	idx          *TeamSeasonIndex
	venues       map[string]models.Venue
	excludeTypes []string
}

func NewRestCalculator(idx *TeamSeasonIndex, venues map[string]models.Venue, excludeTypes []string) *RestCalculator {
	return &RestCalculator{idx: idx, venues: venues, excludeTypes: excludeTypes}
}

type sideRest struct {
	DaysRest   float64
	BackToBack float64
	GamesLast7 float64
	TravelKM   float64
}

// ComputeMatchup emits rest triples for both sides. venueID is the venue
// of the queried game; unknown venues resolve travel distance to zero.
func (r *RestCalculator) ComputeMatchup(home, away, season string, date time.Time, venueID string) *FeatureSet {
	fs := NewFeatureSet(home, away, season, date)
	h := r.computeSide(home, season, date, venueID)
	a := r.computeSide(away, season, date, venueID)
	fs.PutTriple("rest_days", "none", "raw", h.DaysRest, a.DaysRest)
	fs.PutTriple("rest_back_to_back", "none", "raw", h.BackToBack, a.BackToBack)
	fs.PutTriple("rest_games_last7", "none", "raw", h.GamesLast7, a.GamesLast7)
	fs.PutTriple("rest_travel_km", "none", "raw", h.TravelKM, a.TravelKM)
	return fs
}

func (r *RestCalculator) computeSide(team, season string, date time.Time, venueID string) sideRest {
	var rest sideRest

	prev := r.idx.LastGameBefore(team, season, date, r.excludeTypes)
	if prev != nil {
		days := models.NormalizeDate(date).Sub(models.NormalizeDate(prev.Date)).Hours() / 24
		rest.DaysRest = days
		if days <= 1 {
			rest.BackToBack = 1
		}
		rest.TravelKM = r.travelKM(prev.VenueID, venueID)
	}

	weekAgo := date.AddDate(0, 0, -7)
	rest.GamesLast7 = float64(len(r.idx.QueryRange(team, season, &weekAgo, &date, r.excludeTypes)))
	return rest
}

func (r *RestCalculator) travelKM(fromID, toID string) float64 {
	from, okFrom := r.venues[fromID]
	to, okTo := r.venues[toID]
	if !okFrom || !okTo {
		return 0
	}
	return haversineKM(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
