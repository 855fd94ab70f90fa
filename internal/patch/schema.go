package patch

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var mergeSchemaSource string

var (
	mergeSchemaOnce sync.Once
	mergeSchema     *gojsonschema.Schema
	mergeSchemaErr  error
)

func loadMergeSchema() (*gojsonschema.Schema, error) {
	mergeSchemaOnce.Do(func() {
		mergeSchema, mergeSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(mergeSchemaSource))
	})
	return mergeSchema, mergeSchemaErr
}

// validateMerge checks the structural contract of a merge object: types,
// enums, colour and id formats, non-empty strings.
func validateMerge(raw []byte) error {
	schema, err := loadMergeSchema()
	if err != nil {
		return fmt.Errorf("load merge schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return invalid("", "merge object is not valid JSON")
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	seen := make(map[FieldError]bool)
	for _, re := range result.Errors() {
		fe := FieldError{Path: schemaPath(re), Reason: schemaReason(re)}
		if seen[fe] {
			continue
		}
		seen[fe] = true
		verr.Errors = append(verr.Errors, fe)
	}
	sort.SliceStable(verr.Errors, func(i, j int) bool { return verr.Errors[i].Path < verr.Errors[j].Path })
	return verr
}

func schemaPath(re gojsonschema.ResultError) string {
	path := strings.TrimPrefix(re.Context().String("/"), gojsonschema.STRING_CONTEXT_ROOT)
	if property, ok := re.Details()["property"].(string); ok && property != "" {
		switch re.Type() {
		case "required", "additional_property_not_allowed":
			path += "/" + escapePointer(property)
		}
	}
	return path
}

func schemaReason(re gojsonschema.ResultError) string {
	switch re.Type() {
	case "additional_property_not_allowed":
		return "unknown field"
	case "pattern":
		if strings.HasSuffix(re.Field(), "color") {
			return "must be a 6-digit hex colour"
		}
	case "enum":
		return "must be one of " + fmt.Sprint(re.Details()["allowed"])
	}
	return re.Description()
}

func escapePointer(segment string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(segment)
}

func unescapePointer(segment string) string {
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(segment)
}
