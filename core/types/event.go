package types

// Event represents a typed event emitted during state transitions. Attribute
// values are rendered strings so the record can be journaled or served without
// knowing the producing module.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute stored under key, or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
