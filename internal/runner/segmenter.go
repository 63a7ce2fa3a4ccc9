package runner

import "time"

// StatusKind enumerates the Streaming Renderer's StatusEvent kinds.
type StatusKind int

const (
	StatusThinking StatusKind = iota
	StatusTool
	StatusText
	StatusSegmentEnd
	StatusDone
)

// StatusEvent is what the Segmenter emits for the Streaming Renderer to
// consume; SegmentID is meaningful for StatusText/StatusSegmentEnd.
type StatusEvent struct {
	Kind      StatusKind
	SegmentID int
	Content   string
}

// throttleMS is the minimum interval between successive text emissions for
// the same segment.
const throttleMS = 500 * time.Millisecond

// minTextEmitLen is the minimum accumulator length before a mid-stream text
// emission is worth sending.
const minTextEmitLen = 20

// Segmenter maintains segment_id and the current text accumulator, mapping
// a decoded agent event stream onto the StatusEvent sequence the Streaming
// Renderer consumes — one contiguous run of AssistantText between tool uses
// per segment.
type Segmenter struct {
	segmentID   int
	currentText string
	lastEmitAt  time.Time
}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// OnThinking passes a thinking delta straight through; thinking never
// accumulates into a segment.
func (s *Segmenter) OnThinking(delta string) StatusEvent {
	return StatusEvent{Kind: StatusThinking, Content: delta}
}

// OnToolUse finalizes the current segment (if non-empty) before the tool
// status, per spec: "if current_text non-empty, emit segment_end,
// increment segment_id, clear accumulator, then emit tool(status)."
func (s *Segmenter) OnToolUse(toolStatus string) []StatusEvent {
	var events []StatusEvent
	if s.currentText != "" {
		events = append(events, StatusEvent{Kind: StatusSegmentEnd, SegmentID: s.segmentID, Content: SanitizeSegmentText(s.currentText)})
		s.segmentID++
		s.currentText = ""
	}
	events = append(events, StatusEvent{Kind: StatusTool, Content: toolStatus})
	return events
}

// OnText appends a delta to the accumulator and, if the throttle window has
// elapsed and the accumulator is long enough, emits an interim text update.
func (s *Segmenter) OnText(delta string) *StatusEvent {
	s.currentText += delta
	now := time.Now()
	if now.Sub(s.lastEmitAt) > throttleMS && len(s.currentText) > minTextEmitLen {
		s.lastEmitAt = now
		return &StatusEvent{Kind: StatusText, SegmentID: s.segmentID, Content: s.currentText}
	}
	return nil
}

// Finish flushes any pending accumulator as a final segment_end, then
// emits done.
func (s *Segmenter) Finish() []StatusEvent {
	var events []StatusEvent
	if s.currentText != "" {
		events = append(events, StatusEvent{Kind: StatusSegmentEnd, SegmentID: s.segmentID, Content: SanitizeSegmentText(s.currentText)})
		s.segmentID++
		s.currentText = ""
	}
	events = append(events, StatusEvent{Kind: StatusDone})
	return events
}

// CurrentSegmentID returns the in-progress segment id.
func (s *Segmenter) CurrentSegmentID() int { return s.segmentID }
