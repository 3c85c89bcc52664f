package crewsim

import (
	"fmt"
	"strings"
)

// Prompt templates and static fallback tables for the decision service.
// Fallbacks are constants: they are never rebuilt per call.

const crewmateSystemPrompt = `You are %s, a crewmate on a spaceship. You move between rooms completing
maintenance tasks. You are observant and a little nervous: one of the crew
is not who they claim to be. Stay in character. Keep responses short.`

const impostorSystemPrompt = `You are %s, secretly the impostor among the crew of a spaceship. You
pretend to do tasks while watching the others. Never reveal your role.
Stay in character. Keep responses short.`

const decisionInstructions = `Choose your next goal. Reply in exactly this format:
GOAL: <GO_TO_TASK|WANDER|FOLLOW_AGENT|AVOID_AGENT|IDLE|SPEAK%s>
TARGET: <agent name, task number, or NONE>
REASONING: <one sentence>
THOUGHT: <what you are thinking, first person, one sentence>`

const impostorGoalAddendum = "|KILL|HUNT"

// systemPrompt renders the role-specific system template.
func systemPrompt(name string, role Role) string {
	if role == RoleImpostor {
		return fmt.Sprintf(impostorSystemPrompt, name)
	}
	return fmt.Sprintf(crewmateSystemPrompt, name)
}

// describeContext renders the shared situation block: location, visible
// agents with distances, and the task list with completion marks.
func describeContext(actx AgentContext) string {
	var b strings.Builder

	zone := actx.Zone
	if zone == "" {
		zone = "a hallway"
	}
	fmt.Fprintf(&b, "You are in %s.\n", zone)

	if len(actx.Visible) == 0 {
		b.WriteString("You see nobody.\n")
	} else {
		b.WriteString("You can see:\n")
		for _, v := range actx.Visible {
			fmt.Fprintf(&b, "- %s (%.0f units away)\n", v.Name, v.Distance)
		}
	}

	if len(actx.Tasks) > 0 {
		b.WriteString("Your tasks:\n")
		for i, t := range actx.Tasks {
			mark := " "
			if t.IsCompleted {
				mark = "x"
			}
			fmt.Fprintf(&b, "%d. [%s] %s in %s\n", i+1, mark, t.TaskType, t.Room)
		}
	}

	if len(actx.RecentEvents) > 0 {
		b.WriteString("Recently: " + strings.Join(actx.RecentEvents, "; ") + "\n")
	}
	return b.String()
}

// describeTrigger renders the trigger as a one-line stimulus.
func describeTrigger(t Trigger) string {
	switch t.Kind {
	case TriggerAgentSpotted:
		return "You just spotted " + t.OtherName + "."
	case TriggerAgentLostSight:
		return t.OtherName + " just moved out of your sight."
	case TriggerPassedClosely:
		return "You just passed very close to " + t.OtherName + "."
	case TriggerEnteredRoom:
		return "You just entered " + t.Zone + "."
	case TriggerTaskCompleted:
		return "You just finished the " + t.Detail + " task."
	case TriggerTaskStarted:
		return "You just started the " + t.Detail + " task."
	case TriggerArrived:
		return "You just arrived at your destination."
	case TriggerHeardSpeech:
		return "You just heard " + t.OtherName + " say: " + t.Detail
	case TriggerTaskInRadius:
		return "You are standing next to your " + t.Detail + " task."
	default:
		return "Nothing in particular is happening."
	}
}

func buildThoughtPrompt(actx AgentContext) []ChatMessage {
	user := describeContext(actx) + "\n" + describeTrigger(actx.Trigger) +
		"\nWhat goes through your mind? Reply with a single short first-person thought."
	return []ChatMessage{
		SystemMessage(systemPrompt(actx.AgentName, actx.Role)),
		UserMessage(user),
	}
}

func buildSpeechPrompt(actx AgentContext) []ChatMessage {
	user := describeContext(actx) + "\n" + describeTrigger(actx.Trigger) +
		fmt.Sprintf("\nYou can talk to: %s.\nSay one short line out loud. Reply with only the spoken words.",
			strings.Join(actx.CanSpeakTo, ", "))
	return []ChatMessage{
		SystemMessage(systemPrompt(actx.AgentName, actx.Role)),
		UserMessage(user),
	}
}

func buildDecisionPrompt(actx AgentContext) []ChatMessage {
	extra := ""
	if actx.Role == RoleImpostor {
		extra = impostorGoalAddendum
	}
	user := describeContext(actx) + "\n" + describeTrigger(actx.Trigger) + "\n" +
		fmt.Sprintf(decisionInstructions, extra)
	return []ChatMessage{
		SystemMessage(systemPrompt(actx.AgentName, actx.Role)),
		UserMessage(user),
	}
}

func buildReplyPrompt(actx AgentContext, turns []Turn) []ChatMessage {
	msgs := []ChatMessage{SystemMessage(systemPrompt(actx.AgentName, actx.Role))}
	var b strings.Builder
	b.WriteString(describeContext(actx))
	b.WriteString("\nYou are mid-conversation:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.SpeakerName, t.Text)
	}
	b.WriteString("Reply with only your next spoken line, short and in character.")
	msgs = append(msgs, UserMessage(b.String()))
	return msgs
}

// fallbackThoughts are canned first-person thoughts keyed by trigger, used
// when the endpoint times out or errors.
var fallbackThoughts = map[TriggerKind][]string{
	TriggerAgentSpotted:   {"Someone's there.", "Oh, company.", "Who's that over there?"},
	TriggerAgentLostSight: {"Where did they go?", "Lost them.", "They slipped away."},
	TriggerPassedClosely:  {"That was close.", "Excuse me.", "Too close for comfort."},
	TriggerEnteredRoom:    {"New room, stay focused.", "Let's see what's in here.", "Looks quiet in here."},
	TriggerTaskCompleted:  {"Done. Next one.", "That's sorted.", "One less thing to worry about."},
	TriggerTaskStarted:    {"Better focus on this.", "Here we go.", "Hands busy, eyes open."},
	TriggerArrived:        {"Made it.", "Here at last.", "Right, I'm here."},
	TriggerHeardSpeech:    {"Hmm, interesting.", "Did I hear that right?", "Noted."},
	TriggerTaskInRadius:   {"This one's right here.", "Might as well do it now.", "Convenient."},
	TriggerIdleRandom:     {"It's quiet. Too quiet.", "I should keep moving.", "Something feels off today."},
}

// topicReplies are canned conversation lines keyed by inferred topic, used
// to keep a dialogue alive when a reply prompt fails at the endpoint.
var topicReplies = map[Topic][]string{
	TopicSuspicion:  {"I'm not sure I trust that.", "Keep an eye on them."},
	TopicAlibi:      {"I was doing my task, I swear.", "Ask anyone, I was in the cafeteria."},
	TopicTaskInfo:   {"Mine are mostly done.", "Still got wires to fix."},
	TopicSmallTalk:  {"Yeah, long shift.", "Tell me about it."},
	TopicAccusation: {"That's a serious claim.", "You'd better have proof."},
	TopicDefense:    {"It wasn't me.", "I can vouch for that."},
}

// fallbackSpeech are canned spoken lines for the social triggers. Triggers
// without an entry stay silent.
var fallbackSpeech = map[TriggerKind][]string{
	TriggerAgentSpotted:  {"Hey there.", "Oh, hi.", "Didn't see you come in."},
	TriggerPassedClosely: {"Whoa, excuse me.", "Tight squeeze in here."},
	TriggerHeardSpeech:   {"What was that about?", "Say that again?"},
}

// fallbackThought picks a canned thought for the trigger, deterministic in
// the provided draw value.
func fallbackThought(kind TriggerKind, draw int) string {
	list, ok := fallbackThoughts[kind]
	if !ok || len(list) == 0 {
		list = fallbackThoughts[TriggerIdleRandom]
	}
	if draw < 0 {
		draw = -draw
	}
	return list[draw%len(list)]
}
