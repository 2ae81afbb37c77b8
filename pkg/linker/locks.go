package linker

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockShards = 32

// Locks serializes copies into the same destination directory across
// concurrent wheel installations. It is the only state shared between
// installs; everything else is owned per-call.
//
// The registry is sharded by a hash of the directory path so that concurrent
// installs don't contend on a single registry mutex. Directory mutexes are
// created lazily on first use and never removed; growth is bounded by the
// number of distinct destination directories touched in a process lifetime.
type Locks struct {
	shards [lockShards]lockShard
}

type lockShard struct {
	mu   sync.Mutex
	dirs map[string]*sync.Mutex
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{}
}

// AcquireFor locks the mutex associated with the given destination directory,
// allocating it on first reference, and returns the release function. The
// caller must release on all exit paths.
func (l *Locks) AcquireFor(dir string) func() {
	shard := &l.shards[xxhash.Sum64String(dir)%lockShards]

	shard.mu.Lock()
	if shard.dirs == nil {
		shard.dirs = make(map[string]*sync.Mutex)
	}
	dirLock, ok := shard.dirs[dir]
	if !ok {
		dirLock = &sync.Mutex{}
		shard.dirs[dir] = dirLock
	}
	shard.mu.Unlock()

	dirLock.Lock()
	return dirLock.Unlock
}
