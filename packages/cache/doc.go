// Package cache holds captured request snapshots between push and poll.
//
// Snapshots are grouped by key in push order. A poll (Retrieve) takes the
// whole group at once and removes the key, so each snapshot is handed out
// exactly once.
//
// Two independent bounds keep memory in check:
//   - capacity: at most N distinct keys. Pushing a new key into a full cache
//     evicts the least recently pushed key together with its unread snapshots.
//   - ttl: every push moves the key's expiry to now+ttl. A key whose expiry
//     has passed is treated as absent on the next access and purged.
//
// Expiry is checked lazily; there is no background goroutine. Inserting a new
// key also sweeps expired keys from the cold end of the recency list.
//
// All operations run under one mutex. Nothing inside the lock blocks or
// performs I/O. Eviction handlers are called after the lock is released.
package cache
