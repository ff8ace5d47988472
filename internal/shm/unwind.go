package shm

import "errors"

// Unwinder collects release actions for resources acquired one after
// another. Unwind runs them in reverse order of registration, so a failure at
// any step releases exactly what was already acquired. Disarm hands the
// resources over to the caller once every step succeeded.
//
//	var u Unwinder
//	defer u.Unwind()
//	fd := open()
//	u.Defer(func() error { return close(fd) })
//	...
//	u.Disarm()
type Unwinder struct {
	steps []func() error
}

// Defer registers a release action.
func (u *Unwinder) Defer(release func() error) {
	u.steps = append(u.steps, release)
}

// Unwind runs all registered release actions in reverse order and returns
// their joined errors. It is a no-op after Disarm.
func (u *Unwinder) Unwind() error {
	var errs []error
	for i := len(u.steps) - 1; i >= 0; i-- {
		if err := u.steps[i](); err != nil {
			errs = append(errs, err)
		}
	}
	u.steps = nil
	return errors.Join(errs...)
}

// Disarm drops every registered release action.
func (u *Unwinder) Disarm() {
	u.steps = nil
}

// Pending returns the number of registered release actions.
func (u *Unwinder) Pending() int {
	return len(u.steps)
}
