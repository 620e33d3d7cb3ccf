package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// Extraction is the structured output of one memory extraction call. It is
// the only place where the model's free-form JSON is trusted; everything past
// this boundary works with the typed fields.
type Extraction struct {
	SessionSummary ExtractedSummary  `json:"session_summary"`
	Entities       []ExtractedEntity `json:"entities"`
	Triples        []ExtractedTriple `json:"triples"`
}

// ExtractedSummary carries the session-summary fields of one extraction
type ExtractedSummary struct {
	SummaryText string   `json:"summary_text"`
	Keywords    []string `json:"keywords"`
	Themes      []string `json:"themes"`
}

// ExtractedEntity is one entity mention as declared by the extraction
type ExtractedEntity struct {
	CanonicalName string   `json:"canonical_name"`
	EntityType    *string  `json:"entity_type"`
	Aliases       []string `json:"aliases"`
}

// Key returns the canonical dedup key for this mention
func (e *ExtractedEntity) Key() string {
	var entityType string
	if e.EntityType != nil {
		entityType = *e.EntityType
	}
	return EntityKey(e.CanonicalName, entityType)
}

// ExtractedTriple is one candidate fact as declared by the extraction.
// Subject/object reference entities by surface name; resolution to entity IDs
// happens in the pipeline.
type ExtractedTriple struct {
	Subject      string   `json:"subject"`
	SubjectType  *string  `json:"subject_type"`
	Object       *string  `json:"object"`
	ObjectType   *string  `json:"object_type"`
	RelationType string   `json:"relation_type"`
	RelationText *string  `json:"relation_text"`
	Importance   *float64 `json:"importance"`
	IsState      *bool    `json:"is_state"`
	Confidence   *float64 `json:"confidence"`
}

// SubjectKey returns the canonical entity key of the triple's subject
func (t *ExtractedTriple) SubjectKey() string {
	var subjectType string
	if t.SubjectType != nil {
		subjectType = *t.SubjectType
	}
	return EntityKey(t.Subject, subjectType)
}

// ObjectKey returns the canonical entity key of the triple's object, or ""
// when no object was given
func (t *ExtractedTriple) ObjectKey() string {
	if t.Object == nil || NormalizeTerm(*t.Object) == "" {
		return ""
	}
	var objectType string
	if t.ObjectType != nil {
		objectType = *t.ObjectType
	}
	return EntityKey(*t.Object, objectType)
}

// DecodeExtraction parses the raw model response into an Extraction. A
// response that is not a JSON object fails with a malformed_extraction tagged
// error; missing top-level keys default to empty values.
func DecodeExtraction(raw []byte) (*Extraction, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, goerr.Wrap(err, "extraction response is not valid JSON",
			goerr.T(ErrTagMalformedExtraction),
			goerr.V("response", string(raw)))
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, goerr.New("extraction response is not a JSON object",
			goerr.T(ErrTagMalformedExtraction),
			goerr.V("response", string(raw)))
	}

	var ext Extraction
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil, goerr.Wrap(err, "extraction response does not match the expected schema",
			goerr.T(ErrTagMalformedExtraction),
			goerr.V("response", string(raw)))
	}

	if ext.Entities == nil {
		ext.Entities = []ExtractedEntity{}
	}
	if ext.Triples == nil {
		ext.Triples = []ExtractedTriple{}
	}

	return &ext, nil
}
