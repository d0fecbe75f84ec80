// Package sweeper reconciles durable state against what actually happened
// while the process wasn't watching: uploads left at status=Processing by
// an unclean restart, storage-root directories with no matching media_items
// row, and thumbnail references pointing at files that no longer exist.
//
// A startup pass runs synchronously before handing off to a periodic
// ticker and an fsnotify watcher feeding the same reconcile path, with a
// single-flight isRunning guard so a slow sweep and an fsnotify burst never
// run concurrently. The startup pass is a correctness gate — stuck uploads
// must flip to Failed before anything else trusts their status — not just
// a best-effort warm cache.
package sweeper
