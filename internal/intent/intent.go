package intent

// Action is the closed set of things a user turn can ask for.
type Action string

const (
	ActionChat         Action = "chat"
	ActionOpenURL      Action = "open_url"
	ActionSearchGoogle Action = "search_google"
	ActionOpenShortcut Action = "open_shortcut"

	// ActionUnrecognized marks classifier output that could not be used:
	// network failure, unparseable JSON, unknown action, or missing
	// required fields. The caller maps it to chat at a single site.
	ActionUnrecognized Action = "unrecognized"
)

// Intent is the classified form of one user turn. Exactly one is produced
// per turn and consumed once by the dispatch logic.
type Intent struct {
	Action Action
	URL    string
	Query  string
	Key    string
	Params map[string]string
}

// Chat is the default intent when classification cannot decide.
func Chat() Intent { return Intent{Action: ActionChat} }
