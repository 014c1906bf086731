package engine

// ItemKind discriminates the tagged variant carried on every stage queue
// (§9, "Queues and sentinels"). Strictly typing this avoids modeling
// end-of-stream as a sentinel value that could collide with real data, the
// pitfall the design notes call out explicitly.
type ItemKind int

const (
	AudioChunkItem ItemKind = iota
	SilenceEventItem
	ChangeSpeakerItem
	EndOfStreamItem

	// TokenItem carries a single committed Token. The translation queue's
	// input alphabet differs from the audio-consuming stages' (it consumes
	// tokens, not PCM), so it extends the same tagged-variant shape with a
	// fifth case rather than inventing a parallel queue type.
	TokenItem
)

// QueueItem is the single type flowing through every inter-stage channel in
// the engine. Exactly one payload field is meaningful, selected by Kind.
type QueueItem struct {
	Kind ItemKind

	Audio         []float32
	StreamTimeEnd float64

	Silence SilenceEvent

	ChangeSpeaker ChangeSpeakerEvent

	Token Token
}

// NewAudioItem builds a QueueItem carrying an active-audio chunk. pcm is
// stored as given, not copied; a caller fanning one chunk out to several
// stages passes each a fresh slice (see CopyAudio) so no two stages can
// observe each other's mutations, per §5's "Shared resources" guarantee.
func NewAudioItem(pcm []float32, streamTimeEnd float64) QueueItem {
	return QueueItem{Kind: AudioChunkItem, Audio: pcm, StreamTimeEnd: streamTimeEnd}
}

// NewSilenceItem builds a QueueItem carrying a silence boundary event.
func NewSilenceItem(ev SilenceEvent) QueueItem {
	return QueueItem{Kind: SilenceEventItem, Silence: ev}
}

// NewChangeSpeakerItem builds the Formatter's feedback message to the
// transcription and translation queues.
func NewChangeSpeakerItem(ev ChangeSpeakerEvent) QueueItem {
	return QueueItem{Kind: ChangeSpeakerItem, ChangeSpeaker: ev}
}

// NewTokenItem builds the translation queue's per-token handoff message.
func NewTokenItem(t Token) QueueItem {
	return QueueItem{Kind: TokenItem, Token: t}
}

// EndOfStream is the distinguishable termination marker propagated through
// every stage queue in dependency order during Draining.
func EndOfStream() QueueItem {
	return QueueItem{Kind: EndOfStreamItem}
}

// CopyAudio returns an independent copy of pcm, used whenever the same
// logical chunk must be fanned out to more than one stage queue.
func CopyAudio(pcm []float32) []float32 {
	out := make([]float32, len(pcm))
	copy(out, pcm)
	return out
}
