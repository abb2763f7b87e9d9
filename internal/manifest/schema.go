package manifest

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Schema names one of the embedded JSON schemas.
type Schema string

const (
	SchemaBuildManifest     Schema = "build-manifest.schema.json"
	SchemaExtensionManifest Schema = "extension-manifest.schema.json"
	SchemaGroupResult       Schema = "group-result.schema.json"
)

const schemaBaseURL = "https://schemas.extrunner.dev/"

//go:embed schema/*.json
var schemaFS embed.FS

// ErrSchemaViolation is wrapped by every *ValidationError.
var ErrSchemaViolation = errors.New("schema violation")

var (
	compiledSchemas map[Schema]*jsonschema.Schema
	compileOnce     sync.Once
	compileErr      error
	printer         = message.NewPrinter(language.English)
)

// ValidationIssue is a single leaf failure reported by the validator.
type ValidationIssue struct {
	Path    string // instance location, e.g. "/errors/0/type"
	Message string
	Keyword string
}

// ValidationError lists why a document does not match its schema.
type ValidationError struct {
	Schema Schema
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrSchemaViolation }

// getSchemas compiles all embedded schemas once. The group result schema references the
// extension manifest schema, so they share one compiler.
func getSchemas() (map[Schema]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		names := []Schema{SchemaBuildManifest, SchemaExtensionManifest, SchemaGroupResult}
		for _, name := range names {
			raw, err := schemaFS.ReadFile("schema/" + string(name))
			if err != nil {
				compileErr = fmt.Errorf("reading schema %s: %w", name, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				compileErr = fmt.Errorf("unmarshaling schema %s: %w", name, err)
				return
			}
			if err := c.AddResource(schemaBaseURL+string(name), doc); err != nil {
				compileErr = fmt.Errorf("adding schema resource %s: %w", name, err)
				return
			}
		}

		compiledSchemas = make(map[Schema]*jsonschema.Schema, len(names))
		for _, name := range names {
			s, err := c.Compile(schemaBaseURL + string(name))
			if err != nil {
				compileErr = fmt.Errorf("compiling schema %s: %w", name, err)
				return
			}
			compiledSchemas[name] = s
		}
	})
	return compiledSchemas, compileErr
}

// Validate checks raw JSON against the named schema. Malformed JSON and schema
// mismatches are both reported as errors; mismatches as *ValidationError.
func Validate(name Schema, data []byte) error {
	schemas, err := getSchemas()
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	schema, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("unexpected validation error type: %w", err)
	}
	return &ValidationError{Schema: name, Issues: extractIssues(ve)}
}

// extractIssues walks the error tree and keeps leaf failures. For oneOf unions every
// branch is walked so the specific property failures surface.
func extractIssues(ve *jsonschema.ValidationError) []ValidationIssue {
	var issues []ValidationIssue
	collectIssues(ve, &issues)
	if len(issues) == 0 {
		return []ValidationIssue{{Message: ve.Error()}}
	}
	return dedupe(issues)
}

func collectIssues(ve *jsonschema.ValidationError, issues *[]ValidationIssue) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectIssues(cause, issues)
		}
		return
	}

	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	keyword, msg := "", ""
	if ve.ErrorKind != nil {
		if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
			keyword = kw[len(kw)-1]
		}
		msg = ve.ErrorKind.LocalizedString(printer)
	}
	switch keyword {
	case "", "oneOf", "allOf", "$ref":
		return
	}
	*issues = append(*issues, ValidationIssue{Path: path, Message: msg, Keyword: keyword})
}

func dedupe(issues []ValidationIssue) []ValidationIssue {
	seen := make(map[string]bool, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		key := issue.Path + "|" + issue.Keyword + "|" + issue.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, issue)
	}
	return out
}
