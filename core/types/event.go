package types

// Event is a typed notification raised by a ledger operation. Type names are
// namespaced by module ("staking.staked", "ledger.transferred") and the
// attributes carry the operation's observable outcome as strings, with
// amounts rendered in decimal.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// CloneAttributes returns a copy of the attribute map, or nil when the event
// carries none. Journal writers and stream subscribers each receive their own
// copy so a mutation on one side never reaches the other.
func (e *Event) CloneAttributes() map[string]string {
	if e == nil || len(e.Attributes) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		cloned[k] = v
	}
	return cloned
}
