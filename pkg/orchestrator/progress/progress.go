// Package progress implements the Progress Bus (spec.md §4.5): an
// in-process pub/sub keyed by job id, with strict per-job ordering, a
// bounded replay buffer for late subscribers, and topic close on job
// terminal transition. There is no precedent for a pub/sub of this
// shape in the teacher (pkg/newtrun/progress.go is a synchronous
// callback reporter, not a channel fan-out), so this is built from Go's
// standard mutex+channel idioms the way the rest of the corpus builds
// concurrency primitives. Subscribe is snapshot-then-tail: if a
// Snapshotter is installed, the very first event a new subscriber sees
// is a synthesized EventSnapshot carrying the job's current state, only
// then followed by the replay buffer and live events.
package progress

import (
	"sync"
	"time"

	"github.com/newtron-network/newtron/pkg/orchestrator/model"
)

// DefaultBufferSize is the replay buffer length and the per-subscriber
// channel capacity used when NewBus is given a size of 0 or less.
const DefaultBufferSize = 256

type subscriber struct {
	ch      chan model.ProgressEvent
	dropped int
}

type topic struct {
	mu          sync.Mutex
	seq         uint64
	ring        []model.ProgressEvent
	subscribers map[int]*subscriber
	nextSubID   int
	closed      bool
}

// Snapshotter supplies a late subscriber's starting point: the job row
// and every device's current DeviceJobState. Implemented by
// *scheduler.Scheduler, which is the only component that tracks
// per-device progress as it runs a job.
type Snapshotter interface {
	Snapshot(jobID string) (*model.Job, []model.DeviceJobState)
}

// Bus fans ProgressEvents out to subscribers, one topic per job id.
type Bus struct {
	mu         sync.RWMutex
	topics     map[string]*topic
	bufferSize int

	snapMu      sync.RWMutex
	snapshotter Snapshotter
}

// SetSnapshotter installs the source of subscribe-time snapshots. Meant
// to be called once during wiring; guarded by its own mutex so it's
// still safe alongside concurrent Subscribe calls.
func (b *Bus) SetSnapshotter(s Snapshotter) {
	b.snapMu.Lock()
	b.snapshotter = s
	b.snapMu.Unlock()
}

func (b *Bus) snapshotterFor() Snapshotter {
	b.snapMu.RLock()
	defer b.snapMu.RUnlock()
	return b.snapshotter
}

// NewBus returns a Bus whose replay buffers and subscriber channels hold
// bufferSize events; 0 selects DefaultBufferSize.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{topics: make(map[string]*topic), bufferSize: bufferSize}
}

func (b *Bus) topicFor(jobID string, create bool) *topic {
	b.mu.RLock()
	t, ok := b.topics[jobID]
	b.mu.RUnlock()
	if ok || !create {
		return t
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[jobID]; ok {
		return t
	}
	t = &topic{subscribers: make(map[int]*subscriber)}
	b.topics[jobID] = t
	return t
}

// Publish assigns the next sequence number for event.JobID and fans the
// event out to every subscriber on that job's topic. Never blocks: a
// subscriber whose channel is full has its oldest buffered event
// dropped and replaced with a lag marker, not the publisher.
func (b *Bus) Publish(event model.ProgressEvent) {
	t := b.topicFor(event.JobID, true)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.seq++
	event.Seq = t.seq
	if event.Ts.IsZero() {
		event.Ts = time.Now().UTC()
	}

	t.ring = append(t.ring, event)
	if len(t.ring) > b.bufferSize {
		t.ring = t.ring[len(t.ring)-b.bufferSize:]
	}

	for _, sub := range t.subscribers {
		deliver(sub, event)
	}

	if event.Kind == model.EventTerminal {
		b.closeTopicLocked(event.JobID, t)
	}
}

func deliver(sub *subscriber, event model.ProgressEvent) {
	select {
	case sub.ch <- event:
		return
	default:
	}

	select {
	case <-sub.ch:
		sub.dropped++
	default:
	}

	lag := model.ProgressEvent{
		JobID:   event.JobID,
		Seq:     event.Seq,
		Ts:      event.Ts,
		Kind:    model.EventLog,
		Payload: map[string]any{"lag": true, "dropped": sub.dropped},
	}
	select {
	case sub.ch <- lag:
	default:
	}
	select {
	case sub.ch <- event:
	default:
	}
}

// closeTopicLocked marks the topic closed, drops its replay buffer and
// closes every subscriber channel. The closed topic stays registered
// under jobID, so a later Publish for the job is dropped and a later
// Subscribe gets an already-closed channel. Callers must hold t.mu.
func (b *Bus) closeTopicLocked(jobID string, t *topic) {
	t.closed = true
	t.ring = nil
	for id, sub := range t.subscribers {
		close(sub.ch)
		delete(t.subscribers, id)
	}
}

// Subscribe registers for jobID's topic and returns a channel primed
// with the replay buffer (whatever of the last bufferSize events are
// still held) followed by live events. The unsubscribe func must be
// called when the caller stops reading, unless the topic closes first
// (job terminal transition), which closes the channel on its own.
func (b *Bus) Subscribe(jobID string) (<-chan model.ProgressEvent, func()) {
	t := b.topicFor(jobID, true)

	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan model.ProgressEvent, b.bufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	if snap := b.snapshotterFor(); snap != nil {
		if job, states := snap.Snapshot(jobID); job != nil {
			event := model.ProgressEvent{
				JobID:   jobID,
				Ts:      time.Now().UTC(),
				Kind:    model.EventSnapshot,
				Payload: model.ProgressSnapshot{Job: job, DeviceStates: states},
			}
			select {
			case ch <- event:
			default:
			}
		}
	}

	for _, event := range t.ring {
		select {
		case ch <- event:
		default:
		}
	}

	id := t.nextSubID
	t.nextSubID++
	sub := &subscriber{ch: ch}
	t.subscribers[id] = sub

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			return
		}
		if _, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// SubscriberCount reports how many live subscribers a job's topic has,
// for tests and operator diagnostics.
func (b *Bus) SubscriberCount(jobID string) int {
	t := b.topicFor(jobID, false)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}
