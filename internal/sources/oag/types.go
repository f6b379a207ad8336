package oag

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Identifier is one identifier as echoed back by the lookup API.
type Identifier struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Canonical string `json:"canonical,omitempty"`
}

// Identifiers holds a result's identifier field, which the API sends as an
// array on success and as a single object on error. Single remembers which
// shape arrived so it survives re-encoding.
type Identifiers struct {
	Items  []Identifier
	Single bool
}

// UnmarshalJSON accepts either an object or an array of objects.
func (ids *Identifiers) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*ids = Identifiers{}
		return nil
	case data[0] == '{':
		var one Identifier
		if err := json.Unmarshal(data, &one); err != nil {
			return fmt.Errorf("decode identifier object: %w", err)
		}
		*ids = Identifiers{Items: []Identifier{one}, Single: true}
		return nil
	case data[0] == '[':
		var many []Identifier
		if err := json.Unmarshal(data, &many); err != nil {
			return fmt.Errorf("decode identifier list: %w", err)
		}
		*ids = Identifiers{Items: many}
		return nil
	default:
		return fmt.Errorf("unexpected identifier JSON: %s", data)
	}
}

// MarshalJSON writes the shape the value was decoded from.
func (ids Identifiers) MarshalJSON() ([]byte, error) {
	if ids.Single && len(ids.Items) == 1 {
		return json.Marshal(ids.Items[0])
	}
	if ids.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(ids.Items)
}

// First returns the first identifier, if any.
func (ids Identifiers) First() (Identifier, bool) {
	if len(ids.Items) == 0 {
		return Identifier{}, false
	}
	return ids.Items[0], true
}

// LicenceProvenance explains how the API arrived at a licence.
type LicenceProvenance struct {
	Description              string `json:"description,omitempty"`
	AcceptedAuthorManuscript *bool  `json:"accepted_author_manuscript,omitempty"`
}

// Licence is one licence determination.
type Licence struct {
	Type       string            `json:"type"`
	Provenance LicenceProvenance `json:"provenance"`
}

// LicenceFailedToObtain is the licence type reported when nothing could be determined.
const LicenceFailedToObtain = "failed-to-obtain-license"

// Result is one entry of the results, errors or processing lists.
type Result struct {
	Identifier Identifiers `json:"identifier"`
	License    []Licence   `json:"license,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// IsError reports whether the entry has the error shape.
func (r Result) IsError() bool {
	return r.Identifier.Single || r.Error != ""
}

// Licence returns the first licence, or the zero value when none was sent.
func (r Result) Licence() Licence {
	if len(r.License) == 0 {
		return Licence{}
	}
	return r.License[0]
}

// Response is the lookup API reply.
type Response struct {
	Results    []Result `json:"results"`
	Errors     []Result `json:"errors"`
	Processing []Result `json:"processing"`
}
