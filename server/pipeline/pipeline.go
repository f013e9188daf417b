// Package pipeline owns the per-frame processing loop. A single worker
// goroutine holds exclusive access to the consolidation engine, so all
// frame processing is serialized regardless of how many transport
// goroutines submit frames.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Danvdl/SecureStudio/server/cache"
	"github.com/Danvdl/SecureStudio/server/detector"
	"github.com/Danvdl/SecureStudio/server/engine"
	"github.com/Danvdl/SecureStudio/server/timeutil"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("frame queue full")

// CycleKind reports which half of the detect/predict cadence a frame
// landed on.
type CycleKind int

const (
	CycleDetect CycleKind = iota
	CyclePredict
)

func (k CycleKind) String() string {
	if k == CycleDetect {
		return "detect"
	}
	return "predict"
}

// Frame is one decoded video frame submitted for redaction. Encoded
// holds the compressed bytes as received from the transport; when nil
// the processor encodes the image itself before calling the detector.
type Frame struct {
	Image     *image.RGBA
	Encoded   []byte
	Timestamp time.Time
}

// Result is the outcome of processing one frame. Output is the
// submitted image with redaction applied in place; Debug is an
// annotated copy taken before redaction.
type Result struct {
	Output  *image.RGBA
	Debug   *image.RGBA
	Tracks  []engine.TrackState
	Cycle   CycleKind
	Elapsed time.Duration
}

type Stats struct {
	StartTime      time.Time `json:"start_time"`
	FramesTotal    int64     `json:"frames_total"`
	DetectCycles   int64     `json:"detect_cycles"`
	PredictCycles  int64     `json:"predict_cycles"`
	DetectorErrors int64     `json:"detector_errors"`
	CacheHits      int64     `json:"cache_hits"`
	LiveTracks     int       `json:"live_tracks"`
	AverageLatency float64   `json:"average_latency_ms"`
	QueueSize      int       `json:"queue_size"`
}

type Config struct {
	QueueSize    int           `json:"queue_size"`
	FrameTimeout time.Duration `json:"frame_timeout"`
}

func DefaultProcessorConfig() Config {
	return Config{
		QueueSize:    8,
		FrameTimeout: 5 * time.Second,
	}
}

type request struct {
	frame    *Frame
	resultCh chan *Result
}

type Processor struct {
	engine *engine.Engine
	det    detector.Detector
	cache  cache.DetectionCache
	clock  timeutil.Clock
	logger *zap.Logger

	requests chan *request
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	frameCounter atomic.Int64

	stats      Stats
	statsMutex sync.RWMutex
}

// NewProcessor starts the worker goroutine immediately. The detection
// cache may be nil to disable detection caching.
func NewProcessor(eng *engine.Engine, det detector.Detector, detCache cache.DetectionCache, clock timeutil.Clock, cfg Config, logger *zap.Logger) *Processor {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultProcessorConfig().QueueSize
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = DefaultProcessorConfig().FrameTimeout
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Processor{
		engine:   eng,
		det:      det,
		cache:    detCache,
		clock:    clock,
		logger:   logger,
		requests: make(chan *request, cfg.QueueSize),
		timeout:  cfg.FrameTimeout,
		ctx:      ctx,
		cancel:   cancel,
		stats:    Stats{StartTime: clock.Now()},
	}

	p.wg.Add(1)
	go p.worker()

	return p
}

// ProcessFrame queues a frame and blocks until the worker returns its
// result. Safe for concurrent use.
func (p *Processor) ProcessFrame(ctx context.Context, frame *Frame) (*Result, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("frame image is required")
	}

	req := &request{
		frame:    frame,
		resultCh: make(chan *Result, 1),
	}

	select {
	case p.requests <- req:
	default:
		return nil, ErrQueueFull
	}

	select {
	case result := <-req.resultCh:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, fmt.Errorf("processor shut down")
	case <-time.After(p.timeout):
		return nil, fmt.Errorf("frame processing timed out after %s", p.timeout)
	}
}

// UpdateConfig swaps the engine configuration; the new values take
// effect on the next cycle.
func (p *Processor) UpdateConfig(cfg engine.Config) error {
	return p.engine.SetConfig(cfg)
}

func (p *Processor) EngineConfig() engine.Config {
	return p.engine.Config()
}

// Reset drops all tracks and restarts the detect/predict cadence from
// a detection cycle.
func (p *Processor) Reset() {
	p.engine.Reset()
	p.frameCounter.Store(0)
	p.statsMutex.Lock()
	p.stats.LiveTracks = 0
	p.statsMutex.Unlock()
	p.logger.Info("pipeline reset")
}

func (p *Processor) GetStats() Stats {
	p.statsMutex.RLock()
	stats := p.stats
	p.statsMutex.RUnlock()
	stats.QueueSize = len(p.requests)
	return stats
}

func (p *Processor) Shutdown() error {
	p.cancel()
	p.wg.Wait()
	return nil
}

func (p *Processor) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case req := <-p.requests:
			req.resultCh <- p.process(req.frame)
		}
	}
}

func (p *Processor) process(frame *Frame) *Result {
	start := p.clock.Now()

	now := frame.Timestamp
	if now.IsZero() {
		now = start
	}

	kind := p.nextCycle()

	var batch *engine.Batch
	if kind == CycleDetect {
		dets, err := p.lookupDetections(frame, now)
		if err != nil {
			// Detector failure is not an empty result: the engine
			// predicts through the gap instead of expiring tracks.
			p.logger.Warn("detector unavailable, predicting through the gap", zap.Error(err))
			p.bumpDetectorErrors()
			kind = CyclePredict
		} else {
			batch = &engine.Batch{Detections: dets}
		}
	}

	debug := cloneRGBA(frame.Image)
	p.engine.Process(now, batch, frame.Image, debug)
	tracks := p.engine.Snapshot()

	elapsed := p.clock.Since(start)
	p.recordFrame(kind, len(tracks), elapsed)

	return &Result{
		Output:  frame.Image,
		Debug:   debug,
		Tracks:  tracks,
		Cycle:   kind,
		Elapsed: elapsed,
	}
}

// nextCycle advances the frame counter and maps it onto the cadence.
// The interval is re-read from the live config each frame so reloads
// change the cadence without a restart.
func (p *Processor) nextCycle() CycleKind {
	interval := int64(p.engine.Config().DetectionInterval)
	counter := p.frameCounter.Add(1) - 1
	if counter%interval == 0 {
		return CycleDetect
	}
	return CyclePredict
}

func (p *Processor) lookupDetections(frame *Frame, now time.Time) ([]engine.Detection, error) {
	encoded := frame.Encoded
	if encoded == nil {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, frame.Image, imaging.JPEG); err != nil {
			return nil, fmt.Errorf("failed to encode frame: %w", err)
		}
		encoded = buf.Bytes()
	}

	key := cache.FrameKey(encoded)
	if p.cache != nil {
		if dets, err := p.cache.Get(p.ctx, key); err == nil {
			p.logger.Debug("detection cache hit", zap.String("key", key))
			p.bumpCacheHits()
			return dets, nil
		}
	}

	dets, err := p.det.Detect(p.ctx, encoded, now.UnixMilli())
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.Set(p.ctx, key, dets); err != nil {
			p.logger.Debug("failed to cache detections", zap.Error(err))
		}
	}

	return dets, nil
}

func (p *Processor) recordFrame(kind CycleKind, liveTracks int, elapsed time.Duration) {
	p.statsMutex.Lock()
	defer p.statsMutex.Unlock()

	p.stats.FramesTotal++
	if kind == CycleDetect {
		p.stats.DetectCycles++
	} else {
		p.stats.PredictCycles++
	}
	p.stats.LiveTracks = liveTracks

	latency := float64(elapsed.Microseconds()) / 1000.0
	if p.stats.AverageLatency == 0 {
		p.stats.AverageLatency = latency
	} else {
		alpha := 0.1
		p.stats.AverageLatency = alpha*latency + (1-alpha)*p.stats.AverageLatency
	}
}

func (p *Processor) bumpDetectorErrors() {
	p.statsMutex.Lock()
	p.stats.DetectorErrors++
	p.statsMutex.Unlock()
}

func (p *Processor) bumpCacheHits() {
	p.statsMutex.Lock()
	p.stats.CacheHits++
	p.statsMutex.Unlock()
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	return &image.RGBA{
		Pix:    append([]uint8(nil), src.Pix...),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
}
