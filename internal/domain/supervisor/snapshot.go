package supervisor

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/domain/health"
	"github.com/GriffinCanCode/triad/internal/infrastructure/memory"
	"github.com/GriffinCanCode/triad/internal/infrastructure/scheduler"
	"github.com/GriffinCanCode/triad/internal/shared/id"
)

// Snapshot is the status report of one supervision cycle
type Snapshot struct {
	BootID               id.BootID              `json:"boot_id"`
	Cycle                uint64                 `json:"cycle"`
	Time                 time.Time              `json:"time"`
	Flags                string                 `json:"flags"`
	Generator            health.GeneratorStatus `json:"generator"`
	Receiver             health.ReceiverStatus  `json:"receiver"`
	GeneratorHeartbeatMs int64                  `json:"generator_heartbeat_age_ms"`
	ReceiverHeartbeatMs  int64                  `json:"receiver_heartbeat_age_ms"`
	ReceiverRestarts     int                    `json:"receiver_restarts"`
	HeapFree             int64                  `json:"heap_free"`
	HeapMinFree          int64                  `json:"heap_min_free"`
	LowMemory            bool                   `json:"low_memory"`
	Host                 memory.Host            `json:"host"`
	ChannelDepth         int                    `json:"channel_depth"`
	ChannelCapacity      int                    `json:"channel_capacity"`
	Tasks                []scheduler.TaskInfo   `json:"tasks"`
	Actions              []string               `json:"actions,omitempty"`

	signal health.Snapshot
}

func (s *Supervisor) observe(now time.Time) Snapshot {
	sig := s.deps.Health.Snapshot()

	snap := Snapshot{
		BootID:               s.deps.BootID,
		Cycle:                s.cycles,
		Time:                 now,
		Flags:                sig.Flags.String(),
		Generator:            health.DeriveGeneratorStatus(sig.Flags),
		Receiver:             health.DeriveReceiverStatus(sig.Flags),
		GeneratorHeartbeatMs: now.Sub(sig.GeneratorHeartbeat).Milliseconds(),
		ReceiverHeartbeatMs:  now.Sub(sig.ReceiverHeartbeat).Milliseconds(),
		ReceiverRestarts:     s.budget.Counts().ConsecutiveRestarts,
		HeapFree:             s.deps.Heap.FreeBytes(),
		HeapMinFree:          s.deps.Heap.MinimumEverFree(),
		Host:                 s.deps.Host(),
		Tasks:                s.deps.Scheduler.Tasks(),
		signal:               sig,
	}
	if s.deps.Channel != nil {
		snap.ChannelDepth = s.deps.Channel.Len()
		snap.ChannelCapacity = s.deps.Channel.Cap()
	}
	return snap
}

func (s *Supervisor) report(snap Snapshot) {
	m := s.deps.Metrics
	m.SetHeartbeatAge("generator", snap.Time.Sub(snap.signal.GeneratorHeartbeat))
	m.SetHeartbeatAge("receiver", snap.Time.Sub(snap.signal.ReceiverHeartbeat))
	m.SetMemory(snap.HeapFree, snap.HeapMinFree, snap.Host.FreeBytes)
	m.SetTasksLive(len(snap.Tasks))

	s.deps.Logger.Info("System status",
		zap.Uint64("cycle", snap.Cycle),
		zap.String("generator", string(snap.Generator)),
		zap.String("receiver", string(snap.Receiver)),
		zap.String("flags", snap.Flags),
		zap.Int64("heap_free", snap.HeapFree),
		zap.Int64("heap_min_free", snap.HeapMinFree),
		zap.Int("channel_depth", snap.ChannelDepth),
		zap.Int("tasks", len(snap.Tasks)))
}
