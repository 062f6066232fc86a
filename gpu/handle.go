package gpu

// Handle owns a single native object together with the procedure that releases it.
// A nil *Handle is valid and behaves like an already-destroyed handle.
type Handle[T any] struct {
	value   T
	release func(T)
	live    bool
}

func NewHandle[T any](value T, release func(T)) *Handle[T] {
	return &Handle[T]{
		value:   value,
		release: release,
		live:    true,
	}
}

// Get returns the wrapped value, or the zero value once the handle has been destroyed.
func (h *Handle[T]) Get() T {
	var zero T
	if h == nil || !h.live {
		return zero
	}
	return h.value
}

func (h *Handle[T]) Live() bool {
	return h != nil && h.live
}

// Destroy runs the release procedure the first time it is called; later calls do nothing.
func (h *Handle[T]) Destroy() {
	if h == nil || !h.live {
		return
	}
	h.live = false
	if h.release != nil {
		h.release(h.value)
	}
	var zero T
	h.value = zero
}

// DestroyAll destroys handles in slice order.
func DestroyAll[T any](handles []*Handle[T]) {
	for _, handle := range handles {
		handle.Destroy()
	}
}
