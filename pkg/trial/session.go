package trial

import (
	"fmt"
	"sync"
	"time"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

// SpeakerKind classifies a transcript entry.
type SpeakerKind string

const (
	SpeakerUser      SpeakerKind = "user"
	SpeakerAssistant SpeakerKind = "assistant"
	SpeakerSystem    SpeakerKind = "system"
)

// Entry is one transcript turn. IDs are monotonic within a session only.
type Entry struct {
	ID        string      `json:"id"`
	Kind      SpeakerKind `json:"kind"`
	Role      Role        `json:"role,omitempty"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ResourceRef points at a file uploaded to the upstream provider.
type ResourceRef struct {
	ResourceID string `json:"resourceId"`
	Name       string `json:"name"`
}

// Session is the per-trial conversational state shared between the relay
// loop and the REST surface. The relay mutates it from a single task; the
// internal mutex only guards against concurrent REST reads.
type Session struct {
	mu sync.Mutex

	id             string
	flowID         string
	conversationID string
	executionID    string

	status     Status
	transcript []Entry
	pending    []ResourceRef
	uploaded   []ResourceRef

	agents   map[Role]AgentConfig
	selector *Selector

	legal       LegalContext
	caseContext string

	createdAt time.Time
	updatedAt time.Time

	now func() time.Time
}

// NewSession creates a session in the created state. flowID is fixed for the
// session lifetime.
func NewSession(id, flowID string) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		flowID:    flowID,
		status:    StatusCreated,
		agents:    make(map[Role]AgentConfig),
		selector:  NewSelector(),
		createdAt: now,
		updatedAt: now,
		now:       time.Now,
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) FlowID() string { return s.flowID }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Activate marks the session active on a successful connection. Activating an
// ended session is an error: ended is terminal.
func (s *Session) Activate() error {
	return s.transition(StatusActive)
}

// Pause marks the session paused after an unexpected disconnect. State is
// retained for reconnection.
func (s *Session) Pause() error {
	return s.transition(StatusPaused)
}

// End terminates the session permanently.
func (s *Session) End() error {
	return s.transition(StatusEnded)
}

func (s *Session) transition(to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return fmt.Errorf("session %s already ended", s.id)
	}
	s.status = to
	s.updatedAt = s.now()
	return nil
}

// SetConversationID records the upstream conversation handle. It may be
// assigned at most once.
func (s *Session) SetConversationID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID != "" && s.conversationID != id {
		return fmt.Errorf("conversation id already assigned for session %s", s.id)
	}
	s.conversationID = id
	return nil
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// SetExecutionID records the resumable execution handle from an
// awaiting-user-input event, replacing any prior handle.
func (s *Session) SetExecutionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionID = id
}

func (s *Session) ExecutionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executionID
}

// ClearExecutionID drops the resumable handle, forcing the next turn to start
// a fresh execution.
func (s *Session) ClearExecutionID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executionID = ""
}

// AppendUser adds a user entry and returns it.
func (s *Session) AppendUser(content string) Entry {
	return s.append(Entry{Kind: SpeakerUser, Content: content})
}

// AppendAssistant adds an assistant entry, optionally attributed to a role.
func (s *Session) AppendAssistant(role Role, content string) Entry {
	return s.append(Entry{Kind: SpeakerAssistant, Role: role, Content: content})
}

// AppendSystem adds a system entry.
func (s *Session) AppendSystem(content string) Entry {
	return s.append(Entry{Kind: SpeakerSystem, Content: content})
}

func (s *Session) append(e Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = fmt.Sprintf("msg_%d", len(s.transcript))
	e.Timestamp = s.now()
	s.transcript = append(s.transcript, e)
	s.updatedAt = e.Timestamp
	return e
}

// Transcript returns a copy of the transcript in append order.
func (s *Session) Transcript() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// LastSpeaker returns the role of the most recent assistant entry, or empty
// when no agent has spoken yet.
func (s *Session) LastSpeaker() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.transcript) - 1; i >= 0; i-- {
		if s.transcript[i].Kind == SpeakerAssistant && s.transcript[i].Role != "" {
			return s.transcript[i].Role
		}
	}
	return ""
}

// StageResource queues an uploaded file for attachment to the next outbound
// user message and records it in the permanent upload history.
func (s *Session) StageResource(ref ResourceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, ref)
	s.uploaded = append(s.uploaded, ref)
	s.updatedAt = s.now()
}

// TakePendingResources drains the staged queue. Each upload is attached at
// most once: callers must send what they take.
func (s *Session) TakePendingResources() []ResourceRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// UploadedResources returns the full upload history for the session.
func (s *Session) UploadedResources() []ResourceRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ResourceRef, len(s.uploaded))
	copy(out, s.uploaded)
	return out
}

// ConfigureAgents installs the rendered role configs and rebuilds the
// selector over the enabled roles, in registration order.
func (s *Session) ConfigureAgents(configs []AgentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = make(map[Role]AgentConfig, len(configs))
	roles := make([]Role, 0, len(configs))
	for _, cfg := range configs {
		if _, ok := s.agents[cfg.Role]; ok {
			continue
		}
		s.agents[cfg.Role] = cfg
		roles = append(roles, cfg.Role)
	}
	s.selector = NewSelector(roles...)
	s.updatedAt = s.now()
}

// Agent returns the config for a role, if enabled.
func (s *Session) Agent(role Role) (AgentConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.agents[role]
	return cfg, ok
}

// Agents returns the enabled agent configs in selector registration order.
func (s *Session) Agents() []AgentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AgentConfig, 0, len(s.agents))
	for _, r := range s.selector.order {
		if cfg, ok := s.agents[r]; ok {
			out = append(out, cfg)
		}
	}
	return out
}

// Selector returns the responder selector for this session.
func (s *Session) Selector() *Selector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector
}

// SetContext records the legal and case context the agents were rendered
// from.
func (s *Session) SetContext(legal LegalContext, caseContext string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legal = legal
	s.caseContext = caseContext
}

func (s *Session) Context() (LegalContext, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.legal, s.caseContext
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}
