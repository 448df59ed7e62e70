package sim

import (
	"sync"

	"glade-runner/server/internal/telemetry"
)

const (
	commandBufferOccupancyMetricKey = "sim_command_buffer_occupancy"
	commandBufferOverflowMetricKey  = "sim_command_buffer_overflow_total"
)

// CommandBuffer is a fixed-size FIFO ring. Producers on any goroutine push;
// the tick goroutine drains.
type CommandBuffer struct {
	mu      sync.Mutex
	ring    []Command
	head    int
	count   int
	metrics telemetry.Metrics
}

func NewCommandBuffer(capacity int, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &CommandBuffer{ring: make([]Command, capacity), metrics: metrics}
}

func (b *CommandBuffer) Capacity() int {
	return len(b.ring)
}

// Push stages cmd and reports false when the ring is full.
func (b *CommandBuffer) Push(cmd Command) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.ring) {
		b.metrics.Add(commandBufferOverflowMetricKey, 1)
		return false
	}
	b.ring[(b.head+b.count)%len(b.ring)] = cmd
	b.count++
	b.metrics.Store(commandBufferOccupancyMetricKey, uint64(b.count))
	return true
}

// Drain appends the staged commands to dst in FIFO order and empties the
// ring. Pass a reused slice to avoid allocating each tick.
func (b *CommandBuffer) Drain(dst []Command) []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.ring)
		dst = append(dst, b.ring[idx])
		b.ring[idx] = Command{}
	}
	b.head = (b.head + b.count) % len(b.ring)
	b.count = 0
	b.metrics.Store(commandBufferOccupancyMetricKey, 0)
	return dst
}

func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
