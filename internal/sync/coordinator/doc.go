// Package coordinator schedules periodic synchronization runs.
//
// The coordinator is a thin loop around a sync.Runner. It triggers a run on
// startup (unless disabled) and then once per interval, randomized by a
// jitter so that several mirrors do not hit the remote directory at the
// same moment. Runs started from the inbound API share the same runner, so
// a scheduled tick that lands during a manual run is simply rejected as
// already in progress.
//
// # Usage
//
//	coord := coordinator.New(engine, coordinator.FromConfig(&cfg.Sync)...)
//	go func() {
//		if err := coord.Start(ctx); err != nil {
//			slog.Error("Sync coordinator failed", "error", err)
//		}
//	}()
//	defer coord.Stop()
package coordinator
