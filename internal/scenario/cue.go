package scenario

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// cueToJSON evaluates a CUE scenario and exports it as JSON, which the YAML
// decoder accepts unchanged. The value must be concrete.
func cueToJSON(path string, src []byte) ([]byte, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating CUE value: %w", err)
	}

	data, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("exporting CUE value: %w", err)
	}
	return data, nil
}
