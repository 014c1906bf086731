package engine

import (
	"context"

	"github.com/lokutor-ai/streamengine/pkg/audio"
)

// maxWindowSeconds bounds how much audio the gate pulls into a single VAD
// window (§4.2 step 1).
const maxWindowSeconds = 5

// Gate is the Ingress / VAD Gate (C2): it accumulates PCM bytes, runs a VAD
// over fixed windows, and emits active-audio chunks or silence boundary
// events onto the transcription and diarization input queues in the exact
// order they are produced (§4.2's ordering guarantee).
type Gate struct {
	vad            VAD
	sampleRate     int
	bytesPerSecond int

	transcriptOut  chan<- QueueItem
	diarizationOut chan<- QueueItem
	logger         Logger

	buf              []byte
	inSilence        bool
	silenceStartTime float64
	totalSamples     int64
}

// NewGate constructs a Gate. Either output channel may be nil when that
// stage is disabled by configuration; the gate still runs its algorithm and
// simply skips the nil sink (see DESIGN.md, Open Questions: the gate never
// drops audio by silently not enqueuing — it only skips channels that were
// never wired up because the consuming stage doesn't exist this session).
func NewGate(vad VAD, sampleRate int, transcriptOut, diarizationOut chan<- QueueItem, logger Logger) *Gate {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Gate{
		vad:            vad,
		sampleRate:     sampleRate,
		bytesPerSecond: sampleRate * 2, // s16le mono
		transcriptOut:  transcriptOut,
		diarizationOut: diarizationOut,
		logger:         logger,
		inSilence:      true,
	}
}

// Run consumes raw PCM byte chunks from in until it's closed or ctx is
// cancelled, then propagates an EndOfStream sentinel to both output queues.
func (g *Gate) Run(ctx context.Context, in <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-in:
			if !ok {
				g.flushEndOfStream()
				return
			}
			g.ingest(chunk)
		}
	}
}

func (g *Gate) ingest(chunk []byte) {
	g.buf = append(g.buf, chunk...)

	if len(g.buf) >= g.bytesPerSecond*maxWindowSeconds {
		g.logger.Warn("ingress buffer exceeds max window", "bytes", len(g.buf))
	}

	for len(g.buf) >= g.bytesPerSecond {
		g.processWindow()
	}
}

func (g *Gate) processWindow() {
	windowBytes := len(g.buf)
	if cap := g.bytesPerSecond * maxWindowSeconds; windowBytes > cap {
		windowBytes = cap
	}
	if windowBytes%2 != 0 {
		windowBytes--
	}

	window := g.buf[:windowBytes]
	g.buf = g.buf[windowBytes:]

	floats := audio.PCM16ToFloat32(window)
	transition, err := g.vad.Process(floats)
	if err != nil {
		g.logger.Warn("vad processing failed", "error", err)
		g.totalSamples += int64(len(floats))
		return
	}
	g.handleTransition(floats, transition)
}

func (g *Gate) handleTransition(floats []float32, tr *VADTransition) {
	base := g.totalSamples
	sr := float64(g.sampleRate)
	streamTimeAt := func(sampleOffset int) float64 {
		return float64(base+int64(sampleOffset)) / sr
	}

	switch {
	case tr != nil && tr.Start != nil && g.inSilence:
		endTime := streamTimeAt(*tr.Start)
		g.emitSilenceEnded(endTime)
		g.inSilence = false
		g.emitAudio(floats[*tr.Start:], streamTimeAt(len(floats)))

	case tr != nil && tr.End != nil && !g.inSilence:
		g.emitAudio(floats[:*tr.End], streamTimeAt(*tr.End))
		startTime := streamTimeAt(*tr.End)
		g.emitSilenceStarting(startTime)
		g.inSilence = true

	case !g.inSilence:
		g.emitAudio(floats, streamTimeAt(len(floats)))

	default:
		// Fully silent window: not surfaced unless/until it crosses the
		// long-silence threshold, which the consuming stage materializes
		// once it observes the eventual SilenceEnded duration.
	}

	g.totalSamples += int64(len(floats))
}

func (g *Gate) emitAudio(pcm []float32, streamTimeEnd float64) {
	if len(pcm) == 0 {
		return
	}
	if g.transcriptOut != nil {
		g.transcriptOut <- NewAudioItem(CopyAudio(pcm), streamTimeEnd)
	}
	if g.diarizationOut != nil {
		g.diarizationOut <- NewAudioItem(CopyAudio(pcm), streamTimeEnd)
	}
}

func (g *Gate) emitSilenceStarting(startTime float64) {
	g.silenceStartTime = startTime
	ev := SilenceEvent{Start: startTime, Phase: SilenceStarting}
	g.send(NewSilenceItem(ev))
}

func (g *Gate) emitSilenceEnded(endTime float64) {
	duration := endTime - g.silenceStartTime
	ev := SilenceEvent{
		Start:    g.silenceStartTime,
		End:      &endTime,
		Phase:    SilenceEnded,
		Duration: &duration,
	}
	g.send(NewSilenceItem(ev))
}

func (g *Gate) send(item QueueItem) {
	if g.transcriptOut != nil {
		g.transcriptOut <- item
	}
	if g.diarizationOut != nil {
		g.diarizationOut <- item
	}
}

func (g *Gate) flushEndOfStream() {
	g.send(EndOfStream())
}
