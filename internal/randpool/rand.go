package randpool

import (
	"math/rand"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func Int63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	mu.Lock()
	v := rng.Int63n(n)
	mu.Unlock()
	return v
}

func Uint64() uint64 {
	mu.Lock()
	v := rng.Uint64()
	mu.Unlock()
	return v
}
