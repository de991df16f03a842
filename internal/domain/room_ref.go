package domain

// RoomRef is a user's or connection's association with a room. It is either
// empty, an unresolved identifier, or resolved to a concrete room snapshot.
type RoomRef struct {
	id   RoomID
	room *Room
}

func UnresolvedRoom(id RoomID) RoomRef { return RoomRef{id: id} }

func ResolvedRoom(room *Room) RoomRef {
	if room == nil {
		return RoomRef{}
	}
	return RoomRef{id: room.ID, room: room}
}

func (r RoomRef) ID() RoomID       { return r.id }
func (r RoomRef) IsZero() bool     { return r.id == "" }
func (r RoomRef) IsResolved() bool { return r.room != nil }

// Room returns the resolved snapshot, if any.
func (r RoomRef) Room() (*Room, bool) {
	if r.room == nil {
		return nil, false
	}
	return r.room, true
}

// Resolve binds the reference to room. The identifiers must match.
func (r RoomRef) Resolve(room *Room) (RoomRef, error) {
	if room == nil || room.ID != r.id {
		return r, ErrConflict
	}
	return RoomRef{id: r.id, room: room}, nil
}
