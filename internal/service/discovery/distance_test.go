package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/amora/internal/db"
)

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0, haversineKM(10, 10, 10, 10), 1e-9)
	// London to Paris
	assert.InDelta(t, 344, haversineKM(51.5074, -0.1278, 48.8566, 2.3522), 3)
}

func TestByDistanceTiesBreakOnID(t *testing.T) {
	lat, lon := 0.0, 0.0
	origin := &db.Profile{Latitude: &lat, Longitude: &lon}
	at := func(id uint64, la, lo *float64) db.User {
		return db.User{ID: id, Profile: db.Profile{Latitude: la, Longitude: lo}}
	}
	one := 1.0
	out := byDistance(origin, []db.User{
		at(9, nil, nil),
		at(5, &one, &one),
		at(3, &one, &one),
		at(7, nil, nil),
	})
	var ids []uint64
	for _, r := range out {
		ids = append(ids, r.user.ID)
	}
	assert.Equal(t, []uint64{3, 5, 9, 7}, ids)
}
