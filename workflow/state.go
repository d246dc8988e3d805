package workflow

type State int

const (
	Idle State = iota
	Recording
	Recorded
	Uploading
	Processing
	Succeeded
	Failed
)

var stateNames = [...]string{
	Idle:       "idle",
	Recording:  "recording",
	Recorded:   "recorded",
	Uploading:  "uploading",
	Processing: "processing",
	Succeeded:  "succeeded",
	Failed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Busy reports whether a network stage is in flight.
func (s State) Busy() bool { return s == Uploading || s == Processing }

// Terminal states are left only through Reset or Close.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }

// Tips are shown while idle.
var Tips = []string{
	"Use good, even lighting on your hands and face",
	"Keep your hands inside the frame",
	"Sign at a steady, natural pace",
	"Keep clips between 3 and 30 seconds",
}
