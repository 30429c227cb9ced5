package conversation

import "fmt"

// State is a step of the onboarding conversation.
type State uint8

const (
	Welcome State = iota
	InitialOptions
	OpportunitiesMessage
	ReEngage
	CollectingName
	UploadPrompt
	Uploading
	CollectingEmail
	SendingVerification
	AwaitingCode
	VerificationComplete
	CreatingAgent
	End
	stateCount
)

var stateNames = [stateCount]string{
	Welcome:              "welcome",
	InitialOptions:       "initial_options",
	OpportunitiesMessage: "opportunities_message",
	ReEngage:             "re_engage",
	CollectingName:       "collecting_name",
	UploadPrompt:         "upload_prompt",
	Uploading:            "uploading",
	CollectingEmail:      "collecting_email",
	SendingVerification:  "sending_verification",
	AwaitingCode:         "awaiting_code",
	VerificationComplete: "verification_complete",
	CreatingAgent:        "creating_agent",
	End:                  "end",
}

func (s State) String() string {
	if s < stateCount {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ParseState resolves a state from its String form.
func ParseState(name string) (State, bool) {
	for s := State(0); s < stateCount; s++ {
		if stateNames[s] == name {
			return s, true
		}
	}
	return 0, false
}

// Terminal reports whether no event leaves s.
func (s State) Terminal() bool { return s == End }

// Event is something the user (or the client on the user's behalf) does.
type Event uint8

const (
	EventBegin Event = iota
	EventChooseOpportunities
	EventChooseStart
	EventChooseLater
	EventContinue
	EventReturn
	EventLeave
	EventSubmitName
	EventUpload
	EventSkipUpload
	EventUploadDone
	EventUploadFailed
	EventSubmitEmail
	EventSendCode
	EventChangeEmail
	EventSubmitCode
	EventResendCode
	EventCreateAgent
	EventAgentFailed
	EventFinish
	eventCount
)

var eventNames = [eventCount]string{
	EventBegin:               "begin",
	EventChooseOpportunities: "choose_opportunities",
	EventChooseStart:         "choose_start",
	EventChooseLater:         "choose_later",
	EventContinue:            "continue",
	EventReturn:              "return",
	EventLeave:               "leave",
	EventSubmitName:          "submit_name",
	EventUpload:              "upload",
	EventSkipUpload:          "skip_upload",
	EventUploadDone:          "upload_done",
	EventUploadFailed:        "upload_failed",
	EventSubmitEmail:         "submit_email",
	EventSendCode:            "send_code",
	EventChangeEmail:         "change_email",
	EventSubmitCode:          "submit_code",
	EventResendCode:          "resend_code",
	EventCreateAgent:         "create_agent",
	EventAgentFailed:         "agent_failed",
	EventFinish:              "finish",
}

func (e Event) String() string {
	if e < eventCount {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

// ParseEvent resolves an event from its String form.
func ParseEvent(name string) (Event, bool) {
	for e := Event(0); e < eventCount; e++ {
		if eventNames[e] == name {
			return e, true
		}
	}
	return 0, false
}
