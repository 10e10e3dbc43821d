package pipeline

import "sync/atomic"

// Interrupter is the one shared, always-drainable notification primitive
// wired into every
// pipeline's Media Library interrupt hook. Writing a notification causes
// any currently blocking call across every pipeline to unblock and recheck
// its own stop flag.
//
// A literal pipe (write one byte, have N readers each see it) doesn't
// translate to Go's channels without either fan-out plumbing or consuming
// readers racing each other for the single byte. An epoch counter gives the
// same "any blocking call wakes up" guarantee without that race: Notify
// bumps a monotonic counter; each pipeline snapshots the counter when it
// connects, and the interrupt hook registered on that input reports true
// from the first Notify after the snapshot until the next connect takes a
// fresh one. Every pipeline observes every Notify, with no
// consumption/ordering race between them.
type Interrupter struct {
	epoch  atomic.Uint64
	closed atomic.Bool
}

// NewInterrupter constructs a fresh, open Interrupter.
func NewInterrupter() *Interrupter { return &Interrupter{} }

// Notify wakes every pipeline's in-progress blocking call (stop_camera,
// shutdown).
func (in *Interrupter) Notify() { in.epoch.Add(1) }

// Epoch returns the current notification counter, to be snapshotted before
// entering a blocking call.
func (in *Interrupter) Epoch() uint64 { return in.epoch.Load() }

// Since reports whether a Notify has happened since snapshot.
func (in *Interrupter) Since(snapshot uint64) bool { return in.epoch.Load() != snapshot }

// Close marks the interrupter closed and performs one final wake-up, for
// Registry.Shutdown.
func (in *Interrupter) Close() {
	in.closed.Store(true)
	in.epoch.Add(1)
}

// Closed reports whether Close has been called.
func (in *Interrupter) Closed() bool { return in.closed.Load() }
