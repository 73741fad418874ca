// Package async runs background work for the server with panic recovery,
// per-task timeouts and structured logging.
//
// Run executes a task synchronously and is what scheduled cron jobs call:
//
//	scheduler.AddFunc("@hourly", func() {
//		_ = async.Run(ctx, logger, time.Minute, "invitation cleanup", cleanup)
//	})
//
// SafeGo runs a task in its own goroutine, for long lived loops such as the
// configuration watcher:
//
//	async.SafeGo(ctx, logger, 0, "config watcher", watch)
//
// A zero timeout leaves the task bounded only by its parent context.
package async
