package pipeline

import (
	"context"
	"time"

	"github.com/parryvoice/parry/pkg/frames"
	"github.com/parryvoice/parry/pkg/metrics"
	"github.com/parryvoice/parry/pkg/priority"
)

// Audio older than this is stale on a live call and gets shed rather than
// played late.
const maxAudioLag = 500 * time.Millisecond

type orchestrator struct {
	in      chan frames.Frame
	out     chan frames.Frame
	pq      *priority.PriorityQueue
	procs   []FrameProcessor
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	stageCh []chan frames.Frame
	sink    func(frames.Frame)
	obs     metrics.Observer
}

func New(cfg Config) Orchestrator {
	capacity := cfg.HighCapacity + cfg.LowCapacity
	o := &orchestrator{
		in:  make(chan frames.Frame, capacity),
		out: make(chan frames.Frame, capacity),
		pq:  priority.New(cfg.HighCapacity, cfg.LowCapacity, cfg.FairnessRatio),
		cfg: cfg,
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

func (o *orchestrator) SetContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
}

func (o *orchestrator) In() chan frames.Frame            { return o.in }
func (o *orchestrator) Out() chan frames.Frame           { return o.out }
func (o *orchestrator) SetSink(sink func(frames.Frame))  { o.sink = sink }
func (o *orchestrator) SetObserver(obs metrics.Observer) { o.obs = obs }

func (o *orchestrator) AddProcessor(p FrameProcessor) error {
	o.procs = append(o.procs, p)
	return nil
}

func (o *orchestrator) Start() error {
	go o.feed()
	if o.cfg.Async {
		o.startStages()
		go o.dequeue(func(f frames.Frame) { o.push(o.stageCh[0], f) })
	} else {
		go o.dequeue(o.runChain)
	}
	return nil
}

func (o *orchestrator) Stop() error {
	o.cancel()
	// allow goroutines to exit and drain
	time.Sleep(5 * time.Millisecond)
	close(o.out)
	return nil
}

// feed routes inbound frames into the priority queue: control frames take
// the high lane so barge-in outruns buffered audio.
func (o *orchestrator) feed() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case f := <-o.in:
			accepted := false
			if f.Kind() == frames.KindControl {
				accepted = o.pq.TryPushHigh(f)
			} else {
				accepted = o.pq.TryPushLow(f)
			}
			if !accepted {
				o.discard(f)
			}
			o.record("frame_in", f)
		}
	}
}

// dequeue pops frames off the priority queue and hands fresh ones to
// handle; stale audio is shed here, before any processing cost is paid.
func (o *orchestrator) dequeue(handle func(frames.Frame)) {
	for {
		select {
		case <-o.ctx.Done():
			return
		default:
		}
		popped, _ := o.pq.Pop()
		f := popped.(frames.Frame)
		if staleAudio(f) {
			o.discard(f)
			continue
		}
		handle(f)
	}
}

// runChain runs one frame through every processor in order, synchronously.
func (o *orchestrator) runChain(f frames.Frame) {
	batch := []frames.Frame{f}
	for _, p := range o.procs {
		var next []frames.Frame
		for _, cur := range batch {
			start := time.Now()
			produced, err := p.Process(cur)
			if err != nil || produced == nil {
				frames.ReleaseAudioFrame(cur)
				continue
			}
			o.recordStage(p.Name(), cur, start)
			next = append(next, produced...)
		}
		batch = next
		if batch == nil {
			return
		}
	}
	for _, out := range batch {
		o.record("frame_out", out)
		o.emit(out)
	}
}

// startStages wires one goroutine per processor, connected by buffered
// channels, plus a collector on the final channel.
func (o *orchestrator) startStages() {
	o.stageCh = make([]chan frames.Frame, len(o.procs)+1)
	for i := range o.stageCh {
		o.stageCh[i] = make(chan frames.Frame, o.cfg.StageBuffer)
	}
	for i, p := range o.procs {
		go o.runStage(p, o.stageCh[i], o.stageCh[i+1])
	}
	go func() {
		final := o.stageCh[len(o.stageCh)-1]
		for {
			select {
			case <-o.ctx.Done():
				return
			case f := <-final:
				o.record("frame_out", f)
				o.emit(f)
			}
		}
	}()
}

func (o *orchestrator) runStage(p FrameProcessor, in, out chan frames.Frame) {
	for {
		select {
		case <-o.ctx.Done():
			return
		case f := <-in:
			start := time.Now()
			produced, err := p.Process(f)
			if err != nil || produced == nil {
				frames.ReleaseAudioFrame(f)
				continue
			}
			o.recordStage(p.Name(), f, start)
			for _, e := range produced {
				o.push(out, e)
			}
		}
	}
}

func (o *orchestrator) emit(f frames.Frame) {
	if o.sink != nil {
		o.sink(f)
		frames.ReleaseAudioFrame(f)
		return
	}
	o.push(o.out, f)
}

func (o *orchestrator) push(ch chan frames.Frame, f frames.Frame) {
	if staleAudio(f) {
		o.discard(f)
		return
	}
	if o.cfg.Backpressure == BackpressureWait {
		select {
		case <-o.ctx.Done():
			frames.ReleaseAudioFrame(f)
		case ch <- f:
		}
		return
	}
	select {
	case ch <- f:
	default:
		o.discard(f)
	}
}

// discard releases a frame's buffer and records the drop.
func (o *orchestrator) discard(f frames.Frame) {
	frames.ReleaseAudioFrame(f)
	o.record("frame_drop", f)
}

func (o *orchestrator) recordStage(name string, f frames.Frame, start time.Time) {
	if o.obs == nil {
		return
	}
	tags := frameTags(f)
	tags["processor"] = name
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:  "stage_latency_us",
		Time:  time.Now(),
		Value: float64(time.Since(start).Microseconds()),
		Tags:  tags,
	})
}

func (o *orchestrator) record(name string, f frames.Frame) {
	if o.obs == nil {
		return
	}
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: frameTags(f),
	})
}

// frameTags builds the common observability tags for a frame, including
// kind-specific detail for control and system frames.
func frameTags(f frames.Frame) map[string]string {
	tags := make(map[string]string, 6)
	if f == nil {
		return tags
	}
	meta := f.Meta()
	tags[frames.MetaStreamID] = meta[frames.MetaStreamID]
	tags[frames.MetaTraceID] = meta[frames.MetaTraceID]
	tags["kind"] = string(f.Kind())
	if source := meta[frames.MetaSource]; source != "" {
		tags["source"] = source
	}
	switch v := f.(type) {
	case frames.ControlFrame:
		tags["control_code"] = string(v.Code())
		if reason := meta[frames.MetaReason]; reason != "" {
			tags["control_reason"] = reason
		}
	case frames.SystemFrame:
		if name := v.Name(); name != "" {
			tags["system_name"] = name
		}
	}
	return tags
}

// staleAudio reports whether an audio frame's PTS lags real time by more
// than maxAudioLag. Text and control frames are never stale. PTS values
// that are not wall-clock nanoseconds (synthetic generators start near
// zero) are left alone.
func staleAudio(f frames.Frame) bool {
	if f == nil || f.Kind() != frames.KindAudio {
		return false
	}
	pts := f.PTS()
	if pts < 1_000_000_000_000 {
		return false
	}
	return time.Since(time.Unix(0, pts)) > maxAudioLag
}
