package status

// Status represents a recording bot status
type Status int

const (
	// Scheduled - bot created, not yet in the call
	Scheduled Status = iota + 1
	// Joining - bot is joining the call
	Joining
	// Waiting - bot sits in the waiting room
	Waiting
	// Joined - bot connected, not capturing yet
	Joined
	// Recording - bot captures the call
	Recording
	// PermissionDenied - host refused recording, no capture possible
	PermissionDenied
	// Completed - final, call ended
	Completed
	// Error - final, bot failed
	Error
)

var (
	statusName = map[Status]string{Scheduled: "scheduled", Joining: "joining", Waiting: "waiting",
		Joined: "joined", Recording: "recording", PermissionDenied: "permission_denied",
		Completed: "completed", Error: "error"}
	nameStatus = map[string]Status{"scheduled": Scheduled, "joining": Joining, "waiting": Waiting,
		"joined": Joined, "recording": Recording, "permission_denied": PermissionDenied,
		"completed": Completed, "error": Error}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// Terminal indicates no further provider driven progress is expected
func (st Status) Terminal() bool {
	return st == Completed || st == Error || st == PermissionDenied
}
