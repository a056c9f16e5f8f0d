package rules

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// validateDocument checks rule document bytes against the embedded CUE
// schema. Violations come back as LoadErrors carrying the file position
// CUE reports.
func validateDocument(path string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal rules schema: %w", err)
	}
	docSchema := schema.LookupPath(cue.ParsePath("#Document"))
	if err := docSchema.Err(); err != nil {
		return fmt.Errorf("internal rules schema: %w", err)
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return cueLoadError(path, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return cueLoadError(path, err)
	}

	if err := docSchema.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return cueLoadError(path, err)
	}
	return nil
}

// cueLoadError converts a CUE error into a LoadError, keeping the first
// reported position.
func cueLoadError(path string, err error) *LoadError {
	le := &LoadError{Path: path, Msg: cueerrors.Details(err, &cueerrors.Config{})}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Msg = errs[0].Error()
		if pos := errs[0].Position(); pos.IsValid() {
			le.Line = pos.Line()
			le.Col = pos.Column()
		}
	}
	return le
}
