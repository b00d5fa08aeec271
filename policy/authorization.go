package policy

// Owned is anything with a single author.
type Owned interface {
	OwnerID() uint
}

// Authorizer decides whether a viewer may update or delete a resource.
type Authorizer interface {
	CanMutate(resource Owned, viewer Viewer) bool
}

// AuthorOnly lets the author and nobody else mutate a resource.
type AuthorOnly struct{}

func (AuthorOnly) CanMutate(resource Owned, viewer Viewer) bool {
	return viewer.Is(resource.OwnerID())
}
