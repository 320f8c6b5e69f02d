package bridge

import (
	"context"

	"github.com/redpesk-addons/afb-jscli/internal/afb"
	"github.com/redpesk-addons/afb-jscli/internal/wsapi"
)

// DefaultInsertVerb is the verb of the time-series binding storing records.
const DefaultInsertVerb = "ts_jinsert"

// APISink calls a time-series binding for each record. Calls are tracked
// on the binding's session and their failures logged; Insert only fails
// when the call cannot be sent.
type APISink struct {
	api  *afb.API
	verb string
}

// NewAPISink creates a sink calling verb on api. An empty verb selects
// DefaultInsertVerb.
func NewAPISink(api *afb.API, verb string) *APISink {
	if verb == "" {
		verb = DefaultInsertVerb
	}
	return &APISink{api: api, verb: verb}
}

// Insert sends rec as the call arguments.
func (s *APISink) Insert(_ context.Context, rec Record) error {
	logger := s.api.Logger
	return s.api.Call(s.verb, rec, func(r wsapi.Reply) {
		if !r.Succeeded() {
			logger.Warn("insert rejected", "verb", s.verb, "class", rec.Class, "error", r.Error, "info", r.Info)
		}
	})
}
