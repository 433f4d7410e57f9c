package shredder

import "github.com/cockroachdb/errors"

// ErrMisusedHandle is the stable sentinel behind every fail-fast panic
// raised for programmer misuse: accessing a handle after its allocation
// has been reclaimed, or cloning a handle that is no longer registered —
// almost always because a handle is being touched after it was dropped or
// from inside its own destructor or finalizer.
var ErrMisusedHandle = errors.New("shredder: handle used after its allocation was reclaimed")

func misuseMessage(msg string) error {
	return errors.WithMessage(ErrMisusedHandle, msg)
}

func failMisuse(msg string) {
	err := misuseMessage(msg)
	log().Error().Err(err).Msg("fail-fast: programmer misuse detected")
	panic(err)
}
