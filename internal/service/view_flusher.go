package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFlushInterval 是浏览记录刷盘的默认周期。
const DefaultFlushInterval = 5 * time.Minute

// DefaultFlushRetryCap 是失败批次重试缓冲的默认容量。
const DefaultFlushRetryCap = 8

// retainedBatch 是一次落库失败后保留待重试的批次。
type retainedBatch struct {
	id       string
	batch    *ViewBatch
	attempts int
}

// ViewFlusher 周期性地把 ViewCache 中累积的浏览事件落库。
// 同一时刻最多只有一次刷盘在进行，定时触发时若上一次还没结束则跳过本轮。
// 落库失败的批次进入有界重试缓冲，下一轮与新 drain 的数据合并后重试；
// 缓冲超限时丢弃最老的批次并记录数据丢失事件，绝不阻塞写入路径。
type ViewFlusher struct {
	cache    *ViewCache
	sink     ViewSink
	interval time.Duration
	retryCap int

	mu       sync.Mutex
	flushing bool
	retained []retainedBatch
	started  bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewViewFlusher 构造刷盘任务。interval/retryCap 非正时采用默认值。
func NewViewFlusher(cache *ViewCache, sink ViewSink, interval time.Duration, retryCap int) *ViewFlusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if retryCap <= 0 {
		retryCap = DefaultFlushRetryCap
	}
	return &ViewFlusher{
		cache:    cache,
		sink:     sink,
		interval: interval,
		retryCap: retryCap,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动后台刷盘循环。重复调用是无害的空操作。
func (f *ViewFlusher) Start() {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	go f.run()
}

func (f *ViewFlusher) run() {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			if err := f.FlushOnce(context.Background()); err != nil {
				log.Printf("[flusher] flush failed: %v", err)
			}
		}
	}
}

// Stop 停止后台循环，并在 ctx 的期限内做最后一次同步刷盘。
// 可以安全地重复调用，也可以在从未 Start 的情况下调用（只做最终刷盘）。
func (f *ViewFlusher) Stop(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stop) })

	f.mu.Lock()
	started := f.started
	f.mu.Unlock()

	if started {
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return f.FlushOnce(ctx)
}

// FlushOnce 执行一轮刷盘。已有刷盘在进行时直接返回（跳过而非排队）。
// drain 在短临界区内完成，持久化调用发生在临界区之外。
func (f *ViewFlusher) FlushOnce(ctx context.Context) error {
	if !f.beginFlush() {
		return nil
	}
	defer f.endFlush()

	fresh := f.cache.DrainAndSwap()
	pending := f.takeRetained()

	merged := NewViewBatch()
	for _, rb := range pending {
		merged.Merge(rb.batch)
	}
	merged.Merge(fresh)

	if merged.Empty() {
		return nil
	}

	if err := f.sink.SaveViews(ctx, merged); err != nil {
		f.retain(pending, fresh)
		return err
	}

	log.Printf("[flusher] flushed %d view pairs (%d retried batches)", merged.Pairs(), len(pending))
	return nil
}

// RetainedBatches 返回当前重试缓冲内的批次数。
func (f *ViewFlusher) RetainedBatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.retained)
}

func (f *ViewFlusher) beginFlush() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flushing {
		return false
	}
	f.flushing = true
	return true
}

func (f *ViewFlusher) endFlush() {
	f.mu.Lock()
	f.flushing = false
	f.mu.Unlock()
}

func (f *ViewFlusher) takeRetained() []retainedBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := f.retained
	f.retained = nil
	return pending
}

// retain 把失败的批次放回重试缓冲：旧批次原样保留并累加尝试次数，
// 本轮新 drain 的数据作为新批次入队，超出容量时从最老的开始丢弃。
func (f *ViewFlusher) retain(pending []retainedBatch, fresh *ViewBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range pending {
		pending[i].attempts++
	}
	f.retained = append(pending, f.retained...)

	if !fresh.Empty() {
		f.retained = append(f.retained, retainedBatch{
			id:       uuid.New().String(),
			batch:    fresh,
			attempts: 1,
		})
	}

	for len(f.retained) > f.retryCap {
		dropped := f.retained[0]
		f.retained = f.retained[1:]
		log.Printf("[flusher] retry buffer full, dropping batch %s after %d attempts (%d view pairs lost)",
			dropped.id, dropped.attempts, dropped.batch.Pairs())
	}
}
