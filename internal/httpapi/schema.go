package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-compass/internal/service"
)

const maxBodyBytes = 1 << 20

// Schemas check field types only. Presence and approval rules live in the
// service so their messages and ordering stay in one place.
const (
	submitKCSchema = `{
  "type": "object",
  "properties": {
    "kc_id":             {"type": ["string", "null"]},
    "title":             {"type": ["string", "null"]},
    "description":       {"type": ["string", "null"]},
    "target_SOLO_level": {"type": ["string", "null"]},
    "kc_city":           {"type": ["string", "null"]},
    "approved":          {"type": ["boolean", "null"]}
  }
}`

	storeHistorySchema = `{
  "type": "object",
  "properties": {
    "approved":          {"type": ["boolean", "null"]},
    "student_id":        {"type": ["string", "null"]},
    "kc_id":             {"type": ["string", "null"]},
    "SOLO_level":        {"type": ["string", "null"]},
    "student_response":  {"type": ["string", "null"]},
    "justification":     {"type": ["string", "null"]},
    "misconceptions":    {"type": ["string", "null"]},
    "target_SOLO_level": {"type": ["string", "null"]},
    "educational_grade": {"type": ["string", "null"]},
    "lat":               {"type": ["number", "string", "null"]},
    "lng":               {"type": ["number", "string", "null"]},
    "location":          {"type": ["string", "null"]}
  }
}`

	analyzeSchema = `{
  "type": "object",
  "properties": {
    "kc_id":             {"type": ["string", "null"]},
    "student_id":        {"type": ["string", "null"]},
    "educational_grade": {"type": ["string", "null"]},
    "student_response":  {"type": ["string", "null"]}
  }
}`

	reactionSchema = `{
  "type": "object",
  "properties": {
    "kc_id":      {"type": ["string", "null"]},
    "student_id": {"type": ["string", "null"]},
    "language":   {"type": ["string", "null"]}
  }
}`
)

var (
	submitKCValidator     = mustSchema(submitKCSchema)
	storeHistoryValidator = mustSchema(storeHistorySchema)
	analyzeValidator      = mustSchema(analyzeSchema)
	reactionValidator     = mustSchema(reactionSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return s
}

// readBody returns the request body, or "{}" when it is empty.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &service.ValidationError{Message: "request body too large"}
		}
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) == 0 {
		return []byte("{}"), nil
	}
	return body, nil
}

// validate checks body against schema and reports every violation.
func validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &service.ValidationError{Message: "request body must be valid JSON"}
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return &service.ValidationError{Message: "invalid request body", Details: details}
}
