package shipping

// ProgressKind tags a ProgressEvent.
type ProgressKind string

const (
	ProgressLog     ProgressKind = "log"
	ProgressPercent ProgressKind = "progress"
	ProgressDone    ProgressKind = "done"
)

// ProgressEvent is emitted by long-running reconciliation. Exactly one of
// Text (log) or Percent (progress) is meaningful; done carries neither.
type ProgressEvent struct {
	Kind    ProgressKind `json:"kind"`
	Text    string       `json:"text,omitempty"`
	Percent int          `json:"percent,omitempty"`
}

// LogEvent creates a log event.
func LogEvent(text string) ProgressEvent { return ProgressEvent{Kind: ProgressLog, Text: text} }

// PercentEvent creates a progress event, clamping percent to [0,100].
func PercentEvent(percent int) ProgressEvent {
	percent = max(0, min(100, percent))
	return ProgressEvent{Kind: ProgressPercent, Percent: percent}
}

// DoneEvent creates the completion sentinel.
func DoneEvent() ProgressEvent { return ProgressEvent{Kind: ProgressDone} }
