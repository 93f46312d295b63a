package game

type EventType string

const (
	EventState            EventType = "state"
	EventStageSolved      EventType = "stage_solved"
	EventStageAdvanced    EventType = "stage_advanced"
	EventHintUsed         EventType = "hint_used"
	EventSessionCompleted EventType = "session_completed"
	EventSessionEnded     EventType = "session_ended"
	EventTimeExpired      EventType = "time_expired"
	EventAdminUpdate      EventType = "admin_update"
	EventMessage          EventType = "message"
	EventSettingsUpdated  EventType = "settings_updated"
)

// Event is pushed to a session's subscribers. It is a notification only;
// clients re-read the session for the authoritative state.
type Event struct {
	Type          EventType `json:"type"`
	SessionID     string    `json:"sessionId,omitempty"`
	StageNumber   int       `json:"stageNumber,omitempty"`
	CurrentStage  int       `json:"currentStage,omitempty"`
	TimeRemaining int       `json:"timeRemaining,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// Publisher fans events out to whoever watches a session.
type Publisher interface {
	Publish(sessionID string, ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, Event) {}
