package store

import "time"

// Status is the lifecycle stage of a KY session. It only moves forward.
type Status string

const (
	StatusWorkItems    Status = "work_items"
	StatusActionGoal   Status = "action_goal"
	StatusConfirmation Status = "confirmation"
	StatusCompleted    Status = "completed"
)

var statusRank = map[Status]int{
	StatusWorkItems:    0,
	StatusActionGoal:   1,
	StatusConfirmation: 2,
	StatusCompleted:    3,
}

// Rank orders statuses; unknown values rank lowest.
func (s Status) Rank() int {
	return statusRank[s]
}

// NextAction is the model's (or a shortcut's) hint about what to ask next.
type NextAction string

const (
	NextAskWork           NextAction = "ask_work"
	NextAskHazard         NextAction = "ask_hazard"
	NextAskWhy            NextAction = "ask_why"
	NextAskCountermeasure NextAction = "ask_countermeasure"
	NextAskRiskLevel      NextAction = "ask_risk_level"
	NextAskMoreWork       NextAction = "ask_more_work"
	NextAskGoal           NextAction = "ask_goal"
	NextConfirm           NextAction = "confirm"
	NextCompleted         NextAction = "completed"
)

// Role of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CountermeasureCategory groups countermeasures for the report.
type CountermeasureCategory string

const (
	CategoryEquipment CountermeasureCategory = "equipment"
	CategoryBehavior  CountermeasureCategory = "behavior"
	CategoryPPE       CountermeasureCategory = "ppe"
)

type Countermeasure struct {
	Category CountermeasureCategory `json:"category"`
	Text     string                 `json:"text"`
}

// WorkItem is one unit of work with its hazard and countermeasures.
// RiskLevel 0 means "not answered yet".
type WorkItem struct {
	ID                string           `json:"id"`
	WorkDescription   string           `json:"workDescription"`
	HazardDescription string           `json:"hazardDescription"`
	RiskLevel         int              `json:"riskLevel"`
	WhyDangerous      []string         `json:"whyDangerous"`
	Countermeasures   []Countermeasure `json:"countermeasures"`
}

// IsEmpty reports whether nothing has been collected for the item yet.
func (w WorkItem) IsEmpty() bool {
	return w.WorkDescription == "" &&
		w.HazardDescription == "" &&
		w.RiskLevel == 0 &&
		len(w.WhyDangerous) == 0 &&
		len(w.Countermeasures) == 0
}

func (w WorkItem) Clone() WorkItem {
	out := w
	if w.WhyDangerous != nil {
		out.WhyDangerous = append([]string(nil), w.WhyDangerous...)
	}
	if w.Countermeasures != nil {
		out.Countermeasures = append([]Countermeasure(nil), w.Countermeasures...)
	}
	return out
}

// Session is the KY record owned by the active conversation.
type Session struct {
	ID              string     `json:"id"`
	ClientID        string     `json:"clientId"`
	WorkerName      string     `json:"workerName"`
	SiteName        string     `json:"siteName"`
	Weather         string     `json:"weather"`
	Temperature     *float64   `json:"temperature,omitempty"`
	ProcessPhase    string     `json:"processPhase"`
	HealthCondition string     `json:"healthCondition"`
	WorkItems       []WorkItem `json:"workItems"`
	ActionGoal      string     `json:"actionGoal"`

	NearMissReported bool   `json:"nearMissReported"`
	NearMissNote     string `json:"nearMissNote"`

	WorkStartTime time.Time  `json:"workStartTime"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

func (s Session) Clone() Session {
	out := s
	if s.Temperature != nil {
		t := *s.Temperature
		out.Temperature = &t
	}
	if s.WorkItems != nil {
		out.WorkItems = make([]WorkItem, len(s.WorkItems))
		for i, item := range s.WorkItems {
			out.WorkItems[i] = item.Clone()
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

type ChatMessage struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	NextAction NextAction `json:"nextAction,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// OutgoingMessage is the wire shape of one transcript entry sent to the model.
type OutgoingMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PendingRetry captures the last failed request. It is consumed exactly once.
type PendingRetry struct {
	UserText string            `json:"userText"`
	Request  []OutgoingMessage `json:"request"`
	Reason   string            `json:"reason"`
}

// Conversation is the complete state of one live KY session.
type Conversation struct {
	Session  Session       `json:"session"`
	Draft    WorkItem      `json:"draft"`
	Messages []ChatMessage `json:"messages"`
	Status   Status        `json:"status"`
	Pending  *PendingRetry `json:"pending,omitempty"`
}

// Clone returns a deep copy so reducers never share backing arrays.
func (c Conversation) Clone() Conversation {
	out := c
	out.Session = c.Session.Clone()
	out.Draft = c.Draft.Clone()
	if c.Messages != nil {
		out.Messages = append([]ChatMessage(nil), c.Messages...)
	}
	if c.Pending != nil {
		p := *c.Pending
		p.Request = append([]OutgoingMessage(nil), c.Pending.Request...)
		out.Pending = &p
	}
	return out
}

// LastMessage returns the newest transcript entry.
func (c Conversation) LastMessage() (ChatMessage, bool) {
	if len(c.Messages) == 0 {
		return ChatMessage{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}
