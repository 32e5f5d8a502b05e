// Package events defines the lifecycle events the activation engine and
// reaper publish to the event bus. No consumer is required to exist — the
// bus itself may be nil — this is ambient observability, not a spec
// behavior.
package events

import "time"

// Kind enumerates the activation/reap lifecycle transitions worth observing.
type Kind string

const (
	KindActivating  Kind = "vm.activating"
	KindStarted     Kind = "vm.started"
	KindResumed     Kind = "vm.resumed"
	KindStartFailed Kind = "vm.start_failed"
	KindSkipState   Kind = "vm.skip_state"
	KindReaped      Kind = "vm.reaped"
	KindReapFailed  Kind = "vm.reap_failed"
)

// VMEvent describes one lifecycle transition for one managed VM.
type VMEvent struct {
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

// TopicVMEvents is the event bus topic activation and reaper publish to.
const TopicVMEvents = "jitsu.vm.events"
