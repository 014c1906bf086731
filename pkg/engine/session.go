package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SessionState is the per-connection lifecycle named in §4's Concurrency
// model: a session moves strictly Idle -> Streaming -> Draining -> Done,
// matching the orchestrator's own strictly-forward lifecycle.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionStreaming
	SessionDraining
	SessionDone
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionStreaming:
		return "streaming"
	case SessionDraining:
		return "draining"
	case SessionDone:
		return "done"
	default:
		return "unknown"
	}
}

const watchdogInterval = 10 * time.Second

// stageQueueDepth bounds every inter-stage channel (§5: bounded queues, not
// unbounded accumulation, so a stuck consumer applies backpressure to the
// gate rather than growing memory without limit).
const stageQueueDepth = 64

// decoderLike is the uniform surface both Decoder and PassthroughDecoder
// satisfy, letting Session treat container and raw-PCM ingress identically
// everywhere except construction (§4.1's "uniform surface" requirement).
type decoderLike interface {
	Start() bool
	Stop()
	Write(p []byte) bool
}

// Session owns one client connection end to end: decode -> gate -> fan out
// to Transcription/Diarization/Translation -> Formatter. It is the
// generalization of the teacher's ManagedStream to this pipeline's shape.
type Session struct {
	config  EngineConfig
	logger  Logger
	metrics MetricsRecorder

	timeline *TimelineState

	decoder decoderLike
	rawIn   chan []byte

	transcriptIn  chan QueueItem
	diarizationIn chan QueueItem
	translationIn chan QueueItem
	framesOut     chan Frame

	gate                *Gate
	transcriptionWorker *TranscriptionWorker
	diarizationWorker   *DiarizationWorker
	translationWorker   *TranslationWorker
	formatter           *Formatter

	mu    sync.Mutex
	state SessionState

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	doneCh       chan struct{}
	closeRawOnce sync.Once
}

// NewSession builds a Session. diarizer/translator/summarizer may be nil to
// disable the corresponding optional stage regardless of what config
// requests; decoderBinary is passed through to NewDecoder unless
// config.PCMInput selects the passthrough path. dispatcher bounds
// concurrent model-inference calls across this session's three workers
// (§5); pass nil to give this session its own dispatcher (limit 3) shared
// by its workers, or share one dispatcher across every session on a host
// to cap the process's total concurrent outbound model calls.
func NewSession(config EngineConfig, asr ASR, diarizer Diarizer, translator Translator, vad VAD, summarizer Summarizer, decoderBinary string, logger Logger, metrics MetricsRecorder, dispatcher *ModelDispatcher) *Session {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	if dispatcher == nil {
		dispatcher = NewModelDispatcher(3)
	}

	timeline := NewTimelineState()

	s := &Session{
		config:   config,
		logger:   logger,
		metrics:  metrics,
		timeline: timeline,
		state:    SessionIdle,
		doneCh:   make(chan struct{}),
	}

	s.rawIn = make(chan []byte, stageQueueDepth)
	s.transcriptIn = make(chan QueueItem, stageQueueDepth)

	diarizationEnabled := config.Diarization && diarizer != nil
	translationEnabled := config.TargetLanguage != "" && translator != nil

	var diarizationSink chan<- QueueItem
	if diarizationEnabled {
		s.diarizationIn = make(chan QueueItem, stageQueueDepth)
		diarizationSink = s.diarizationIn
	}

	s.gate = NewGate(vad, config.SampleRate, s.transcriptIn, diarizationSink, logger)
	s.transcriptionWorker = NewTranscriptionWorker(asr, timeline, config, logger, dispatcher)

	if diarizationEnabled {
		s.diarizationWorker = NewDiarizationWorker(diarizer, timeline, logger, dispatcher)
	}

	var feedbackToTranscription chan<- QueueItem = s.transcriptIn
	var feedbackToTranslation chan<- QueueItem
	if translationEnabled {
		s.translationIn = make(chan QueueItem, stageQueueDepth)
		s.translationWorker = NewTranslationWorker(translator, timeline, logger, dispatcher)
		feedbackToTranslation = s.translationIn
	}

	s.framesOut = make(chan Frame, stageQueueDepth)
	s.formatter = NewFormatter(timeline, feedbackToTranscription, feedbackToTranslation, summarizer, config.EnableSummary, logger)

	if config.PCMInput {
		s.decoder = NewPassthroughDecoder(func(pcm []byte) {
			select {
			case s.rawIn <- pcm:
			default:
				logger.Warn("ingress queue full, dropping chunk")
			}
		})
	} else {
		s.decoder = NewDecoder(decoderBinary, config.SampleRate, config.Channels, s.onDecoderFailure, logger)
	}

	return s
}

// Start transitions Idle -> Streaming, launches every stage goroutine in
// dependency order, and returns the frame stream the transport layer should
// forward to the client. Calling Start twice is a no-op returning the
// existing channel.
func (s *Session) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	if s.state != SessionIdle {
		s.mu.Unlock()
		return s.framesOut, nil
	}
	s.state = SessionStreaming
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if !s.decoder.Start() {
		s.mu.Lock()
		s.state = SessionDone
		s.mu.Unlock()
		return s.framesOut, ErrDecoderStartFailed
	}

	s.metrics.SessionStarted()

	if dec, ok := s.decoder.(*Decoder); ok {
		s.wg.Add(1)
		go s.pumpDecoder(runCtx, dec)
	}

	go s.gate.Run(runCtx, s.rawIn)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.transcriptionWorker.Run(runCtx, s.transcriptIn, s.translationIn)
	}()

	if s.diarizationWorker != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.diarizationWorker.Run(runCtx, s.diarizationIn)
		}()
	}

	if s.translationWorker != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.translationWorker.Run(runCtx, s.translationIn)
		}()
	}

	go func() {
		s.wg.Wait()
		s.mu.Lock()
		s.state = SessionDraining
		s.mu.Unlock()
		close(s.doneCh)
	}()

	go s.formatter.Run(runCtx, s.framesOut, s.doneCh)
	go s.watchdog(runCtx)

	return s.framesOut, nil
}

// pumpDecoder is the sole owner of a real Decoder's stdout: it reads
// decoded PCM and forwards it to the gate's input queue until the decoder
// stops producing, then closes rawIn so every downstream stage observes
// the end of the stream in order (§4.1's Protocol).
func (s *Session) pumpDecoder(ctx context.Context, dec *Decoder) {
	defer s.wg.Done()
	defer s.closeRawIn()

	const readChunk = 32 * 1024
	for {
		buf, ok := dec.Read(readChunk)
		if !ok {
			return
		}
		if len(buf) == 0 {
			return
		}
		select {
		case s.rawIn <- buf:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) closeRawIn() {
	s.closeRawOnce.Do(func() { close(s.rawIn) })
}

// PushAudio hands one chunk of client-provided bytes (container bytes, or
// raw PCM when config.PCMInput) to the decoder.
func (s *Session) PushAudio(chunk []byte) bool {
	return s.decoder.Write(chunk)
}

// EndStream signals no further audio is coming: it stops the decoder and,
// in PCM passthrough mode (where there is no reader goroutine to notice
// the decoder stopping), closes rawIn itself.
func (s *Session) EndStream() {
	s.decoder.Stop()
	if s.config.PCMInput {
		s.closeRawIn()
	}
}

// Stop cancels every stage immediately, regardless of drain progress. Use
// EndStream for the graceful path; Stop is for abrupt teardown (client
// disconnect, session timeout).
func (s *Session) Stop() {
	s.decoder.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.closeRawIn()
	s.mu.Lock()
	s.state = SessionDone
	s.mu.Unlock()
	s.metrics.SessionEnded()
}

// State reports the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) onDecoderFailure(reason DecoderFailureReason, err error) {
	s.logger.Error("decoder failure", "reason", reason, "error", err)
	s.metrics.WorkerError("decoder")

	if dec, ok := s.decoder.(*Decoder); ok && reason != ReasonDecoderNotFound {
		if dec.Restart() {
			return
		}
	}

	s.emitError(fmt.Sprintf("decoder error: %s", reason))
	s.Stop()
}

func (s *Session) emitError(message string) {
	select {
	case s.framesOut <- Frame{Status: StatusError, Error: message}:
	default:
		s.logger.Warn("dropped error frame, framesOut full", "message", message)
	}
}

// watchdog periodically observes the Timeline State's lag watermarks
// (§4.6) and reports them to the metrics recorder, matching the
// orchestrator's own periodic health-check goroutine.
func (s *Session) watchdog(ctx context.Context) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.doneCh:
			return
		case <-ticker.C:
			snap := s.timeline.Snapshot()
			s.metrics.ObserveLag("transcription", snap.LagTranscription)
			s.metrics.ObserveLag("diarization", snap.LagDiarization)
		}
	}
}
