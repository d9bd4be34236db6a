package model

// EntityID identifies a live entity within the process
type EntityID int64

// InvalidEntityID marks the absence of an entity
const InvalidEntityID EntityID = 0

// Entity is a snapshot of a movable object's physical state:
// where it was, which way it faced, and how fast it was going at
// TimestampMs (epoch milliseconds). TimestampMs == 0 means the entity
// has never received a movement command.
type Entity struct {
	ID          EntityID
	Position    Vec3
	Rotation    Quat
	Velocity    float64
	TimestampMs int64
}

// NewEntity returns an entity at the origin with the identity rotation
func NewEntity(id EntityID) Entity {
	return Entity{
		ID:       id,
		Rotation: IdentityQuat(),
	}
}
