package afb

// CallRecord is the assertion info reported for a resolved call.
// Predicate specs have no printable form and are omitted.
type CallRecord struct {
	API      string `json:"api,omitempty"`
	Verb     string `json:"verb"`
	Request  any    `json:"request"`
	Reply    any    `json:"reply"`
	Error    string `json:"error,omitempty"`
	Info     string `json:"info,omitempty"`
	Match    any    `json:"match,omitempty"`
	NotMatch any    `json:"notmatch,omitempty"`
}
