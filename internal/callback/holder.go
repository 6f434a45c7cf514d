// Package callback provides a reentrancy-safe holder for one-shot
// callbacks.
//
// The problem DO_INVOKE exists to solve: a callback may, while running,
// register a new handler in the same slot it was invoked from (e.g. a read
// callback that immediately schedules another read). If the caller cleared
// the slot only after Invoke returned, that re-registration would be wiped
// out. Holder fixes this by detaching its stored value from the slot before
// invoking it, so any write the callback makes to the slot during Invoke
// survives.
package callback

// Holder holds at most one callback value of type T. Release detaches and
// returns the stored value, clearing the slot first, so a callback invoked
// via Release can safely re-populate the same Holder from inside itself.
type Holder[T any] struct {
	value T
	set   bool
}

// Set stores v, replacing whatever was previously held.
func (h *Holder[T]) Set(v T) {
	h.value = v
	h.set = true
}

// IsNull reports whether the holder currently has no value.
func (h *Holder[T]) IsNull() bool { return !h.set }

// Clear empties the holder without returning the value.
func (h *Holder[T]) Clear() {
	var zero T
	h.value = zero
	h.set = false
}

// Release detaches and returns the held value along with whether one was
// present. The slot is cleared before Release returns, so code that is
// about to invoke the returned value may re-Set the same Holder reentrantly.
func (h *Holder[T]) Release() (T, bool) {
	v, ok := h.value, h.set
	var zero T
	h.value = zero
	h.set = false
	return v, ok
}

// Invoke releases the holder's value, if any, and calls fn with it;
// otherwise it's a no-op. Because
// Release already cleared the slot, fn is free to Set a new value on this
// same Holder before returning.
func Invoke[T any](h *Holder[T], fn func(T)) {
	v, ok := h.Release()
	if !ok {
		return
	}
	fn(v)
}
