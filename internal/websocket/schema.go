package websocket

// Action identifies a client-to-server message.
type Action string

const (
	ActionSubscribe Action = "subscribe" // attach to push channels for a record
	ActionHeartbeat Action = "heartbeat"
	ActionSwitch    Action = "switch" // client-reported tab switch
	ActionBlur      Action = "blur"
	ActionFocus     Action = "focus"
	ActionAnswer    Action = "answer" // buffered answer save
	ActionPing      Action = "ping"
)

// Request is the single client-to-server message shape. Fields beyond Action
// are read per action.
type Request struct {
	Action       Action `json:"action"`
	ExamID       int64  `json:"examId,omitempty"`
	ExamRecordID int64  `json:"examRecordId,omitempty"`
	QuestionID   int64  `json:"questionId,omitempty"`
	Answer       string `json:"answer,omitempty"`
	ExamToken    string `json:"examToken,omitempty"`
}

// Event identifies a server-to-client message.
type Event string

const (
	EventProgress   Event = "progress"
	EventWarning    Event = "warning"
	EventExamStatus Event = "exam_status"
	EventSaved      Event = "saved"
	EventSubscribed Event = "subscribed"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

type ProgressResponse struct {
	Event    Event `json:"event"`
	Progress int64 `json:"progress"`
}

type WarningResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message"`
}

type ExamStatusResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

type SavedResponse struct {
	Event      Event `json:"event"`
	QuestionID int64 `json:"questionId"`
	Progress   int64 `json:"progress"`
}

type SubscribedResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
