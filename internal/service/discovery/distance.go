package discovery

import (
	"math"
	"sort"

	"github.com/oggyb/amora/internal/db"
)

const earthRadiusKM = 6371.0

// haversineKM is the great-circle distance between two coordinates.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

type ranked struct {
	user db.User
	km   float64
	has  bool
}

// byDistance orders located candidates nearest first, then everyone without
// coordinates in the recency order they arrived in. Ties break on id.
func byDistance(origin *db.Profile, users []db.User) []ranked {
	out := make([]ranked, len(users))
	for i, u := range users {
		out[i] = ranked{user: u}
		if u.Profile.HasLocation() {
			out[i].has = true
			out[i].km = haversineKM(*origin.Latitude, *origin.Longitude, *u.Profile.Latitude, *u.Profile.Longitude)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.has != b.has {
			return a.has
		}
		if !a.has {
			return false
		}
		if a.km != b.km {
			return a.km < b.km
		}
		return a.user.ID < b.user.ID
	})
	return out
}
