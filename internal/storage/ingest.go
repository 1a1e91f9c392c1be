package storage

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"glen/internal/models"
)

// MessageIngestor decouples live-stream delivery from disk writes: incoming
// chat messages go onto a bounded queue and a single worker commits them, one
// transaction per message (row + parent edges). Live ingestion stays
// independent of a full sync cycle.
type MessageIngestor struct {
	writeQ chan messageWriteRequest
	wg     sync.WaitGroup
	stopCh chan struct{}

	mu      sync.Mutex
	stopped bool

	writeBatchSize int           // how many messages to drain per wakeup
	writeFlushFreq time.Duration // max wait before flushing batch
}

type messageWriteRequest struct {
	msg    *models.Message
	ctx    context.Context
	result chan error
}

// NewMessageIngestor returns a ready-to-start ingestor.
// writeQSize: buffered channel size for incoming writes.
func NewMessageIngestor(writeQSize int) *MessageIngestor {
	return &MessageIngestor{
		writeQ:         make(chan messageWriteRequest, writeQSize),
		stopCh:         make(chan struct{}),
		writeBatchSize: 50,
		writeFlushFreq: 200 * time.Millisecond,
	}
}

// Start launches the background writer. Call Stop() to cleanly shut down.
func (mi *MessageIngestor) Start(store *Store) {
	mi.wg.Add(1)
	go mi.writeWorker(store)
}

// Stop stops the worker and blocks until the queue is drained.
func (mi *MessageIngestor) Stop() {
	mi.mu.Lock()
	if mi.stopped {
		mi.mu.Unlock()
		return
	}
	mi.stopped = true
	close(mi.stopCh)
	mi.mu.Unlock()
	mi.wg.Wait()
}

// Enqueue hands one message to the writer. A full queue fails fast so the
// transport reader never blocks on disk. The send happens under the lock so
// an accepted message is always queued before the stop drain begins; after
// Stop the caller gets ErrQueueFull instead of a silently dropped write.
func (mi *MessageIngestor) Enqueue(ctx context.Context, msg *models.Message) (<-chan error, error) {
	req := messageWriteRequest{
		msg:    msg,
		ctx:    ctx,
		result: make(chan error, 1),
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if mi.stopped {
		return nil, ErrQueueFull
	}
	select {
	case mi.writeQ <- req:
		return req.result, nil
	default:
		return nil, ErrQueueFull
	}
}

func (mi *MessageIngestor) writeWorker(store *Store) {
	defer mi.wg.Done()
	batch := make([]messageWriteRequest, 0, mi.writeBatchSize)
	flushTimer := time.NewTimer(mi.writeFlushFreq)
	defer flushTimer.Stop()

	flush := func() {
		for _, r := range batch {
			if err := store.SaveMessage(r.ctx, r.msg); err != nil {
				glog.Errorf("ingest: save message %s: %v", r.msg.ID, err)
				r.result <- err
			} else {
				r.result <- nil
			}
			close(r.result)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-mi.stopCh:
			// drain queue before exiting
			for {
				select {
				case req := <-mi.writeQ:
					batch = append(batch, req)
					if len(batch) >= mi.writeBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case req := <-mi.writeQ:
			batch = append(batch, req)
			if len(batch) >= mi.writeBatchSize {
				flush()
				if !flushTimer.Stop() {
					<-flushTimer.C
				}
				flushTimer.Reset(mi.writeFlushFreq)
			}
		case <-flushTimer.C:
			flush()
			flushTimer.Reset(mi.writeFlushFreq)
		}
	}
}
