package model

// Direction is the way data flows between the live system and the repository.
type Direction string

const (
	// DirectionPull copies live configs into the repository.
	DirectionPull Direction = "pull"
	// DirectionPush copies repository configs onto the live system.
	DirectionPush Direction = "push"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	return string(d)
}

// Description returns a human-readable description of the direction.
func (d Direction) Description() string {
	switch d {
	case DirectionPull:
		return "home -> repository"
	case DirectionPush:
		return "repository -> home"
	default:
		return "unknown direction"
	}
}
