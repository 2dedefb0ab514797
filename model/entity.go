package model

import "fmt"

// Body identifies the celestial body an entity belongs to.
type Body int

const (
	BodyEarth Body = iota
	BodyMars
)

func (b Body) String() string {
	switch b {
	case BodyEarth:
		return "earth"
	case BodyMars:
		return "mars"
	default:
		return fmt.Sprintf("body(%d)", int(b))
	}
}

// Role classifies a simulated entity.
type Role int

const (
	RoleFriendlySatellite Role = iota
	RoleAdversarySatellite
	RoleSpacecraft
	RoleGroundStation
	RoleAdversaryGroundStation
	RoleLaserStation
)

func (r Role) String() string {
	switch r {
	case RoleFriendlySatellite:
		return "satellite"
	case RoleAdversarySatellite:
		return "adversary_satellite"
	case RoleSpacecraft:
		return "spacecraft"
	case RoleGroundStation:
		return "ground_station"
	case RoleAdversaryGroundStation:
		return "adversary_ground_station"
	case RoleLaserStation:
		return "laser_station"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// IsGround reports whether the role describes a surface-fixed station.
func (r Role) IsGround() bool {
	return r == RoleGroundStation || r == RoleAdversaryGroundStation || r == RoleLaserStation
}

// EntityID is the registry-assigned identity of an entity. IDs start at 1.
type EntityID int

// OrbitParams fully define a circular orbit around the owning body.
// Angles are radians, Speed is radians per simulated second.
type OrbitParams struct {
	Radius      float64
	Inclination float64
	Node        float64
	Phase       float64
	Speed       float64
}

// GroundSite is a fixed surface location in degrees.
type GroundSite struct {
	LatDeg float64
	LonDeg float64
}

// Entity represents a simulated asset (satellite, ground station, relay, etc.).
// Positions are not stored here; the registry tracks them per frame.
type Entity struct {
	ID   EntityID
	Name string
	Role Role
	Body Body

	// Index is the position of the entity within its (Body, Role) group.
	Index int

	// Orbit is set for friendly satellites; adversaries only use Radius.
	Orbit *OrbitParams
	// Site is set for ground and laser stations.
	Site *GroundSite
}
