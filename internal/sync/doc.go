// Package sync implements incremental synchronization of the plugin directory
// into the local record store.
//
// # Engine
//
// Engine owns the run state machine. A run is started by Trigger, either
// from the scheduler in the coordinator subpackage or from the inbound API.
// At most one run is active per process; a trigger that arrives while a run
// is active is rejected immediately with an "already in progress" summary.
//
// # Cursor
//
// Each run resumes from a cursor, the newest modification time already
// mirrored. It is resolved in order from:
//
//  1. the newest record in the durable tier
//  2. the side marker file written by the last completed run
//  3. the Unix epoch
//
// # Walk
//
// The feed is read page by page, newest-modified first. The walk ends on an
// empty or last page, on the first record no newer than the cursor (unless
// the run is forced), or when a configured page or record cap is reached.
// Every stored record that changed produces a change event for the
// notification sinks. A page fetch error fails the run and leaves the side
// marker untouched.
package sync
