package conversation

import (
	"errors"
	"fmt"
)

type ruleKind uint8

const (
	ruleIllegal ruleKind = iota
	ruleLocal
	ruleRemote
)

type remoteCall uint8

const (
	callNone remoteCall = iota
	callStartSession
	callSetName
	callSetEmail
	callSendCode
	callResendCode
	callValidateCode
	callComplete
)

type guardKind uint8

const (
	guardNone guardKind = iota
	guardName
	guardEmail
	guardCode
)

// rule is one cell of the transition table. Remote rules resolve their
// destination from the server outcome; outcomes not listed in on keep the
// machine where it is.
type rule struct {
	kind  ruleKind
	next  State
	guard guardKind
	call  remoteCall
	on    map[Outcome]State
}

func local(next State) rule {
	return rule{kind: ruleLocal, next: next}
}

func remote(call remoteCall, guard guardKind, on map[Outcome]State) rule {
	if call != callStartSession {
		if _, ok := on[OutcomeNotFound]; !ok {
			on[OutcomeNotFound] = Welcome
		}
	}
	return rule{kind: ruleRemote, call: call, guard: guard, on: on}
}

var table = buildTable()

func init() {
	if err := validateTable(&table); err != nil {
		panic(fmt.Sprintf("conversation: invalid transition table: %v", err))
	}
}

func buildTable() [stateCount][eventCount]rule {
	var t [stateCount][eventCount]rule

	t[Welcome][EventBegin] = remote(callStartSession, guardNone, map[Outcome]State{
		OutcomeOK: InitialOptions,
	})

	t[InitialOptions][EventChooseOpportunities] = local(OpportunitiesMessage)
	t[InitialOptions][EventChooseStart] = local(CollectingName)
	t[InitialOptions][EventChooseLater] = local(ReEngage)

	t[OpportunitiesMessage][EventContinue] = local(CollectingName)
	t[OpportunitiesMessage][EventChooseLater] = local(ReEngage)

	t[ReEngage][EventReturn] = local(InitialOptions)
	t[ReEngage][EventLeave] = local(End)

	t[CollectingName][EventSubmitName] = remote(callSetName, guardName, map[Outcome]State{
		OutcomeOK: UploadPrompt,
	})

	t[UploadPrompt][EventUpload] = local(Uploading)
	t[UploadPrompt][EventSkipUpload] = local(CollectingEmail)

	t[Uploading][EventUploadDone] = local(CollectingEmail)
	t[Uploading][EventUploadFailed] = local(UploadPrompt)

	t[CollectingEmail][EventSubmitEmail] = remote(callSetEmail, guardEmail, map[Outcome]State{
		OutcomeOK:              SendingVerification,
		OutcomeAlreadyVerified: VerificationComplete,
	})

	t[SendingVerification][EventSendCode] = remote(callSendCode, guardNone, map[Outcome]State{
		OutcomeSent:            AwaitingCode,
		OutcomeDispatchFailed:  AwaitingCode,
		OutcomeAlreadyVerified: VerificationComplete,
		OutcomeEmailRequired:   CollectingEmail,
	})
	t[SendingVerification][EventChangeEmail] = local(CollectingEmail)

	t[AwaitingCode][EventSubmitCode] = remote(callValidateCode, guardCode, map[Outcome]State{
		OutcomeVerified:          VerificationComplete,
		OutcomeIncorrect:         AwaitingCode,
		OutcomeExpired:           AwaitingCode,
		OutcomeInvalidFormat:     AwaitingCode,
		OutcomeAttemptsExhausted: Welcome,
	})
	t[AwaitingCode][EventResendCode] = remote(callResendCode, guardNone, map[Outcome]State{
		OutcomeSent:            AwaitingCode,
		OutcomeDispatchFailed:  AwaitingCode,
		OutcomeAlreadyVerified: VerificationComplete,
		OutcomeEmailRequired:   CollectingEmail,
	})
	t[AwaitingCode][EventChangeEmail] = local(CollectingEmail)

	t[VerificationComplete][EventCreateAgent] = local(CreatingAgent)

	t[CreatingAgent][EventFinish] = remote(callComplete, guardNone, map[Outcome]State{
		OutcomeOK:          End,
		OutcomeCompleted:   End,
		OutcomeNotVerified: SendingVerification,
	})
	t[CreatingAgent][EventAgentFailed] = local(VerificationComplete)

	return t
}

// validateTable checks that End is the only state without an outward event,
// that every destination is a known state, and that every state is reachable
// from Welcome.
func validateTable(t *[stateCount][eventCount]rule) error {
	var errs []error
	for s := State(0); s < stateCount; s++ {
		legal := 0
		for e := Event(0); e < eventCount; e++ {
			r := t[s][e]
			switch r.kind {
			case ruleIllegal:
				continue
			case ruleLocal:
				if r.next >= stateCount {
					errs = append(errs, fmt.Errorf("%s/%s: unknown destination", s, e))
				}
			case ruleRemote:
				if r.call == callNone {
					errs = append(errs, fmt.Errorf("%s/%s: remote rule without call", s, e))
				}
				if len(r.on) == 0 {
					errs = append(errs, fmt.Errorf("%s/%s: remote rule without outcomes", s, e))
				}
				for o, d := range r.on {
					if d >= stateCount {
						errs = append(errs, fmt.Errorf("%s/%s/%s: unknown destination", s, e, o))
					}
				}
			default:
				errs = append(errs, fmt.Errorf("%s/%s: unknown rule kind", s, e))
			}
			legal++
		}
		if s.Terminal() && legal > 0 {
			errs = append(errs, fmt.Errorf("%s: terminal state has outward events", s))
		}
		if !s.Terminal() && legal == 0 {
			errs = append(errs, fmt.Errorf("%s: no outward event", s))
		}
	}

	reached := reachable(t, Welcome)
	for s := State(0); s < stateCount; s++ {
		if !reached[s] {
			errs = append(errs, fmt.Errorf("%s: unreachable from %s", s, Welcome))
		}
	}
	return errors.Join(errs...)
}

func reachable(t *[stateCount][eventCount]rule, from State) [stateCount]bool {
	var seen [stateCount]bool
	queue := []State{from}
	seen[from] = true
	visit := func(s State) {
		if s < stateCount && !seen[s] {
			seen[s] = true
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for e := Event(0); e < eventCount; e++ {
			r := t[s][e]
			switch r.kind {
			case ruleLocal:
				visit(r.next)
			case ruleRemote:
				for _, d := range r.on {
					visit(d)
				}
			}
		}
	}
	return seen
}

// Legal reports whether e may be fired in s.
func Legal(s State, e Event) bool {
	return s < stateCount && e < eventCount && table[s][e].kind != ruleIllegal
}

// Events lists the events legal in s in declaration order.
func Events(s State) []Event {
	var out []Event
	for e := Event(0); e < eventCount; e++ {
		if Legal(s, e) {
			out = append(out, e)
		}
	}
	return out
}

// IsRemote reports whether e in s needs a server round-trip.
func IsRemote(s State, e Event) bool {
	return Legal(s, e) && table[s][e].kind == ruleRemote
}

// Resolve returns the destination of e fired in s. Local events ignore the
// outcome; remote events map it through the table and stay put for outcomes
// the table does not name.
func Resolve(s State, e Event, o Outcome) (State, error) {
	if !Legal(s, e) {
		return s, fmt.Errorf("%w: %s in %s", ErrIllegalTransition, e, s)
	}
	r := table[s][e]
	if r.kind == ruleLocal {
		return r.next, nil
	}
	if d, ok := r.on[o]; ok {
		return d, nil
	}
	return s, nil
}
