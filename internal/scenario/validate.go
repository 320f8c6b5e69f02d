package scenario

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/go-playground/validator.v9"

	"github.com/redpesk-addons/afb-jscli/internal/diag"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the structure of sc and the consistency of every step
// with the connection it targets.
func Validate(sc *Scenario) error {
	if err := validate.Struct(sc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fieldErrors(verrs)
		}
		return err
	}

	if _, err := diag.ParseConfig(sc.Options); err != nil {
		return fmt.Errorf("options: %w", err)
	}

	kinds := make(map[string]string, len(sc.Connections))
	for i, c := range sc.Connections {
		if _, dup := kinds[c.Name]; dup {
			return fmt.Errorf("connections[%d]: duplicate name %q", i, c.Name)
		}
		kinds[c.Name] = c.Kind
	}

	for i, step := range sc.Steps {
		if err := validateStep(step, kinds); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}
	return nil
}

func fieldErrors(verrs validator.ValidationErrors) error {
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Scenario.")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		errs = append(errs, fmt.Errorf("%s: failed %s", field, rule))
	}
	return errors.Join(errs...)
}

func isCall(op string) bool {
	switch op {
	case OpCall, OpCallSuccess, OpCallError, OpCallMatch:
		return true
	}
	return false
}

func isWait(op string) bool {
	switch op {
	case OpWaitCompletion, OpWaitCalls, OpWaitEvents, OpWaitCount:
		return true
	}
	return false
}

func apiOnly(op string) bool {
	switch op {
	case OpSessionCreate, OpSessionRemove, OpTokenCreate, OpTokenRemove,
		OpSetSession, OpSetToken, OpUnexpected, OpDescribe:
		return true
	}
	return false
}

func validateStep(step Step, kinds map[string]string) error {
	if _, err := step.timeout(); err != nil {
		return err
	}
	if step.Timeout != "" && !isWait(step.Op) {
		return errors.New("timeout only applies to wait operations")
	}
	if step.NotMatch != nil && step.Op != OpCallMatch {
		return errors.New("notmatch only applies to call_match")
	}
	if step.Match != nil && step.Op != OpCallMatch && step.Op != OpExpectEvent {
		return errors.New("match only applies to call_match and expect_event")
	}
	if step.Event != "" && step.Op != OpExpectEvent {
		return errors.New("event only applies to expect_event")
	}

	if isWait(step.Op) {
		if step.Conn != "" {
			return errors.New("conn does not apply")
		}
		return nil
	}
	if step.Op == OpExpectEvent && step.Conn == "" {
		if step.Event != "" || step.Match != nil {
			return errors.New("event and match require conn")
		}
		return nil
	}

	if step.Conn == "" {
		return errors.New("conn is required")
	}
	kind, ok := kinds[step.Conn]
	if !ok {
		return fmt.Errorf("unknown connection %q", step.Conn)
	}
	if apiOnly(step.Op) && kind != KindAPI {
		return fmt.Errorf("requires an api connection, %q is %s", step.Conn, kind)
	}

	switch {
	case isCall(step.Op):
		if step.Verb == "" {
			return errors.New("verb is required")
		}
		if kind == KindJ1 && step.API == "" {
			return errors.New("api is required on j1 connections")
		}
		if kind == KindAPI && step.API != "" {
			return errors.New("api only applies to j1 connections")
		}
	case step.Op == OpSessionCreate || step.Op == OpTokenCreate:
		if step.ID == 0 || step.Name == "" {
			return errors.New("id and name are required")
		}
	case step.Op == OpSessionRemove || step.Op == OpTokenRemove:
		if step.ID == 0 {
			return errors.New("id is required")
		}
	}
	return nil
}
