package engine

// CreatedContainer identifies one container created from a template.
type CreatedContainer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateResult lists created containers in creation order.
type CreateResult struct {
	Containers []CreatedContainer
}

// Single returns the container when exactly one was created.
func (r CreateResult) Single() (CreatedContainer, bool) {
	if len(r.Containers) != 1 {
		return CreatedContainer{}, false
	}
	return r.Containers[0], true
}

// Lookup is the outcome of a read operation that treats "not found" as a
// normal result rather than an error.
type Lookup[T any] struct {
	value T
	found bool
}

func Found[T any](value T) Lookup[T] {
	return Lookup[T]{value: value, found: true}
}

func NotFound[T any]() Lookup[T] {
	return Lookup[T]{}
}

// Get returns the value and whether it exists.
func (l Lookup[T]) Get() (T, bool) {
	return l.value, l.found
}

func (l Lookup[T]) Found() bool {
	return l.found
}
