package model

// Identity is the logical owner of a transport session.
type Identity struct {
	ID   string       `json:"id"`
	Kind IdentityKind `json:"kind"`
}

func (i Identity) IsGuest() bool {
	return i.Kind == IdentityGuest
}

func Authenticated(id string) Identity {
	return Identity{ID: id, Kind: IdentityAuthenticated}
}

func Guest(id string) Identity {
	return Identity{ID: id, Kind: IdentityGuest}
}
