package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"polaroid-extractor/internal/logger"
	"polaroid-extractor/internal/opencv/safe"
)

// DefaultMaxBytes caps the native memory one pipeline run may hold at once.
const DefaultMaxBytes int64 = 2 * 1024 * 1024 * 1024

// Manager tracks every Mat allocated during one pipeline run. Cleanup closes
// whatever is still open so no intermediate survives into the next run.
type Manager struct {
	allocations map[uint64]*AllocationRecord
	mu          sync.Mutex
	stats       Stats
	logger      logger.Logger
}

type AllocationRecord struct {
	Mat       *safe.Mat
	Tag       string
	CreatedAt time.Time
	Size      int64
}

type Stats struct {
	TotalAllocated int64
	TotalReleased  int64
	ActiveMats     int64
	Allocations    int64
	Leaked         int64
	MaxAllowed     int64
}

func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		allocations: make(map[uint64]*AllocationRecord),
		stats: Stats{
			MaxAllowed: DefaultMaxBytes,
		},
		logger: log,
	}
}

// GetMat allocates a tracked Mat of the given geometry.
func (m *Manager) GetMat(rows, cols int, matType gocv.MatType, tag string) (*safe.Mat, error) {
	m.mu.Lock()
	inUse := m.stats.TotalAllocated - m.stats.TotalReleased
	limit := m.stats.MaxAllowed
	m.mu.Unlock()

	if inUse > limit {
		return nil, fmt.Errorf("memory limit exceeded: %d bytes allocated", inUse)
	}

	mat, err := safe.NewMatWithTracker(rows, cols, matType, m, tag)
	if err != nil {
		return nil, fmt.Errorf("allocating %s: %w", tag, err)
	}
	m.Register(mat)
	return mat, nil
}

// Adopt places a Mat returned by gocv under tracking.
func (m *Manager) Adopt(mat gocv.Mat, tag string) (*safe.Mat, error) {
	owned, err := safe.Adopt(mat, m, tag)
	if err != nil {
		return nil, err
	}
	m.Register(owned)
	return owned, nil
}

func (m *Manager) TrackAllocation(id uint64, size int64, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocations[id] = &AllocationRecord{
		Tag:       tag,
		CreatedAt: time.Now(),
		Size:      size,
	}
	m.stats.TotalAllocated += size
	m.stats.ActiveMats++
	m.stats.Allocations++
}

func (m *Manager) TrackDeallocation(id uint64, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.allocations[id]
	if !exists {
		m.logger.Warning("MemoryManager", "release of untracked Mat", map[string]interface{}{
			"tag": tag,
		})
		return
	}

	delete(m.allocations, id)
	m.stats.TotalReleased += record.Size
	m.stats.ActiveMats--
}

// Register remembers the owning Mat so Cleanup can close it.
func (m *Manager) Register(mat *safe.Mat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.allocations[mat.ID()]; ok {
		record.Mat = mat
	}
}

func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// ActiveTags lists the tags of Mats that are still open, sorted.
func (m *Manager) ActiveTags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	tags := make([]string, 0, len(m.allocations))
	for _, record := range m.allocations {
		tags = append(tags, record.Tag)
	}
	sort.Strings(tags)
	return tags
}

// Cleanup closes every Mat still open and returns how many there were.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	open := make([]*AllocationRecord, 0, len(m.allocations))
	for _, record := range m.allocations {
		open = append(open, record)
	}
	m.mu.Unlock()

	leaked := 0
	for _, record := range open {
		leaked++
		if record.Mat != nil {
			record.Mat.Close()
			continue
		}
		m.logger.Warning("MemoryManager", "open Mat without owner reference", map[string]interface{}{
			"tag": record.Tag,
		})
	}

	if leaked > 0 {
		m.mu.Lock()
		m.stats.Leaked += int64(leaked)
		m.mu.Unlock()

		m.logger.Warning("MemoryManager", "closed Mats left open by the run", map[string]interface{}{
			"count": leaked,
		})
	}

	return leaked
}
