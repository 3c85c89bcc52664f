package crewsim

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
)

// Topic classifies what a conversation is about, inferred from the
// opening message.
type Topic string

const (
	TopicSuspicion  Topic = "suspicion"
	TopicAlibi      Topic = "alibi"
	TopicTaskInfo   Topic = "task_info"
	TopicSmallTalk  Topic = "small_talk"
	TopicAccusation Topic = "accusation"
	TopicDefense    Topic = "defense"
)

// topicKeywords maps lowercase keywords to topics, checked in order of
// specificity. Unmatched messages classify as small talk.
var topicKeywords = []struct {
	words []string
	topic Topic
}{
	{[]string{"it was you", "you did it", "you killed", "i accuse"}, TopicAccusation},
	{[]string{"wasn't me", "not me", "i swear", "vouch"}, TopicDefense},
	{[]string{"sus", "suspicious", "vent", "trust", "acting weird", "saw"}, TopicSuspicion},
	{[]string{"i was in", "i was at", "i was doing", "alibi"}, TopicAlibi},
	{[]string{"task", "wires", "fuel", "fix", "download", "scan"}, TopicTaskInfo},
}

// InferTopic classifies a message by keyword.
func InferTopic(message string) Topic {
	m := strings.ToLower(message)
	for _, tk := range topicKeywords {
		for _, w := range tk.words {
			if strings.Contains(m, w) {
				return tk.topic
			}
		}
	}
	return TopicSmallTalk
}

// Turn is one utterance in a conversation.
type Turn struct {
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
}

// Conversation is a two-party ordered dialogue with a randomized turn cap.
type Conversation struct {
	ID               string    `json:"id"`
	Participants     [2]string `json:"participants"` // agent ids
	ParticipantNames [2]string `json:"participantNames"`
	Turns            []Turn    `json:"turns"`
	MaxTurns         int       `json:"maxTurns"` // in [3,10]
	Topic            Topic     `json:"topic"`
	IsActive         bool      `json:"isActive"`
	CloseReason      string    `json:"closeReason,omitempty"`
	StartTime        int64     `json:"startTime"`
	LastActivityTime int64     `json:"lastActivityTime"`

	closedAt int64
}

// Involves reports whether the agent is one of the two participants.
func (c *Conversation) Involves(agentID string) bool {
	return c.Participants[0] == agentID || c.Participants[1] == agentID
}

// OtherParticipant returns the id and name of the participant that is not
// agentID.
func (c *Conversation) OtherParticipant(agentID string) (id, name string) {
	if c.Participants[0] == agentID {
		return c.Participants[1], c.ParticipantNames[1]
	}
	return c.Participants[0], c.ParticipantNames[0]
}

// Conversation lifetime constants (ms).
const (
	conversationInactivityMs = 30_000
	conversationLingerMs     = 30_000
)

// Conversations coordinates all dialogues. Owned by the tick loop; no
// internal locking.
type Conversations struct {
	byID   map[string]*Conversation
	active map[string]string // agent id -> active conversation id
	rng    *rand.Rand
	logger *slog.Logger
}

// NewConversations creates the coordinator.
func NewConversations(rng *rand.Rand, logger *slog.Logger) *Conversations {
	if logger == nil {
		logger = nopLogger
	}
	return &Conversations{
		byID:   make(map[string]*Conversation),
		active: make(map[string]string),
		rng:    rng,
		logger: logger,
	}
}

// Start opens a conversation between initiator and target with the given
// opening message. If the initiator already has an active conversation it
// is returned instead; a new conversation is never stacked on an old one.
func (cs *Conversations) Start(initiatorID, initiatorName, targetID, targetName, message string, now int64) *Conversation {
	if id, ok := cs.active[initiatorID]; ok {
		return cs.byID[id]
	}
	if id, ok := cs.active[targetID]; ok {
		// Target is busy; the initiator joins nothing.
		if conv := cs.byID[id]; conv.Involves(initiatorID) {
			return conv
		}
		return nil
	}

	conv := &Conversation{
		ID:               NewID(),
		Participants:     [2]string{initiatorID, targetID},
		ParticipantNames: [2]string{initiatorName, targetName},
		MaxTurns:         3 + cs.rng.Intn(8),
		Topic:            InferTopic(message),
		IsActive:         true,
		StartTime:        now,
		LastActivityTime: now,
	}
	conv.Turns = append(conv.Turns, Turn{
		SpeakerID: initiatorID, SpeakerName: initiatorName, Text: message, Timestamp: now,
	})
	cs.byID[conv.ID] = conv
	cs.active[initiatorID] = conv.ID
	cs.active[targetID] = conv.ID

	cs.logger.Debug("conversation started",
		"id", conv.ID, "topic", conv.Topic, "maxTurns", conv.MaxTurns,
		"between", initiatorName+"/"+targetName)
	return conv
}

// AddReply appends a turn. Speakers must strictly alternate; the
// conversation closes once the turn count reaches MaxTurns.
func (cs *Conversations) AddReply(convID, speakerID, speakerName, text string, now int64) error {
	conv, ok := cs.byID[convID]
	if !ok {
		return fmt.Errorf("conversation %s not found", convID)
	}
	if !conv.IsActive {
		return fmt.Errorf("conversation %s is closed", convID)
	}
	if !conv.Involves(speakerID) {
		return fmt.Errorf("agent %s is not part of conversation %s", speakerID, convID)
	}
	if last := conv.Turns[len(conv.Turns)-1]; last.SpeakerID == speakerID {
		return fmt.Errorf("agent %s spoke twice in a row in %s", speakerID, convID)
	}

	conv.Turns = append(conv.Turns, Turn{
		SpeakerID: speakerID, SpeakerName: speakerName, Text: text, Timestamp: now,
	})
	conv.LastActivityTime = now

	if len(conv.Turns) >= conv.MaxTurns {
		cs.close(conv, "max_turns_reached", now)
	}
	return nil
}

// GetActiveFor returns the agent's active conversation, or nil.
func (cs *Conversations) GetActiveFor(agentID string) *Conversation {
	if id, ok := cs.active[agentID]; ok {
		return cs.byID[id]
	}
	return nil
}

// All returns every conversation still in memory (active and lingering).
func (cs *Conversations) All() []*Conversation {
	out := make([]*Conversation, 0, len(cs.byID))
	for _, c := range cs.byID {
		out = append(out, c)
	}
	return out
}

// TickCleanup closes conversations idle past the inactivity window and
// evicts closed ones past the linger window.
func (cs *Conversations) TickCleanup(now int64) {
	for id, conv := range cs.byID {
		if conv.IsActive && now-conv.LastActivityTime > conversationInactivityMs {
			cs.close(conv, "inactivity", now)
		}
		if !conv.IsActive && now-conv.closedAt > conversationLingerMs {
			delete(cs.byID, id)
		}
	}
}

func (cs *Conversations) close(conv *Conversation, reason string, now int64) {
	conv.IsActive = false
	conv.CloseReason = reason
	conv.closedAt = now
	delete(cs.active, conv.Participants[0])
	delete(cs.active, conv.Participants[1])
	cs.logger.Debug("conversation closed",
		"id", conv.ID, "reason", reason, "turns", len(conv.Turns))
}
