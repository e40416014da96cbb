package txn

import (
	"sync/atomic"
	"time"
)

type CoordinatorType int

const (
	// Standalone mode uses the in-process SynchronousLock for admission.
	// It is appropriate for standalone or embedded applications running in a single process.
	Standalone CoordinatorType = iota
	// Clustered mode uses Redis for admission coordination (see the redis subpackage).
	// It allows hosting multiple application instances across a network.
	Clustered
)

// RedisConfig holds configuration for connecting to a Redis server or cluster.
type RedisConfig struct {
	// Address is the host:port of the Redis server/cluster.
	Address string `json:"address"`
	// Password is the password used to authenticate.
	Password string `json:"password"`
	// DB is the database index to select.
	DB int `json:"db"`
}

// Options holds the process-wide transaction configuration.
type Options struct {
	// Capacity is the number of transactions the process lock admits concurrently.
	// Zero keeps the current lock untouched; the lazy default is a capacity-1 serializer.
	Capacity int `json:"capacity"`
	// MaxTime caps every transaction's execution. Zero disables the cap.
	MaxTime time.Duration `json:"max_time"`
	// VerboseLogging promotes per-transaction trace lines to debug log output.
	VerboseLogging bool `json:"verbose_logging"`
	// Coordinator selects in-process (Standalone) or Redis-backed (Clustered) admission.
	// This is a convenience field; see GetCoordinatorType.
	Coordinator CoordinatorType `json:"coordinator"`
	// RedisConfig specifies the Redis configuration when Coordinator is Clustered.
	RedisConfig *RedisConfig `json:"redis_config,omitempty"`
}

// GetCoordinatorType returns Clustered when a Redis configuration is present,
// otherwise the explicitly configured coordinator.
func (o Options) GetCoordinatorType() CoordinatorType {
	if o.RedisConfig != nil {
		return Clustered
	}
	return o.Coordinator
}

// Apply installs the in-process parts of the options: lock capacity, maxTime
// and verbose logging. Clustered coordination is wired by the caller using the
// redis subpackage, which cannot be referenced from here.
func (o Options) Apply() {
	if o.Capacity > 0 {
		SetLock(NewSynchronousLock(o.Capacity))
	}
	SetMaxTime(o.MaxTime)
	SetVerboseLogging(o.VerboseLogging)
}

var maxTime atomic.Int64

// SetMaxTime sets the process-wide cap applied to every transaction's
// execution. Zero (the default) disables the cap. It can be changed at any
// time; transactions read it lazily when fired.
func SetMaxTime(d time.Duration) {
	maxTime.Store(int64(d))
}

// MaxTime returns the process-wide transaction execution cap.
func MaxTime() time.Duration {
	return time.Duration(maxTime.Load())
}
