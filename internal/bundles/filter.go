package bundles

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Filter decides which parsed items are emitted for indexing. Items
// failing the filter are still parsed for structural validity but never
// emitted.
type Filter interface {
	Match(item *Item) bool
}

// ParseFilter parses the JSON filter language:
//
//	{"always": true}
//	{"never": true}
//	{"tags": [{"name": "App-Name", "value": "x"},
//	          {"name": "Content-Type", "valueStartsWith": "image/"}]}
//	{"attributes": {"owner_address": "...", "signature_type": 1}}
//	{"and": [f, ...]} {"or": [f, ...]} {"not": f}
//
// An empty document matches nothing. Unknown keys are rejected so typos
// in configuration fail at startup instead of silently matching.
func ParseFilter(raw string) (Filter, error) {
	if raw == "" {
		return neverFilter{}, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	return buildFilter(doc)
}

func buildFilter(doc map[string]json.RawMessage) (Filter, error) {
	if len(doc) == 0 {
		return neverFilter{}, nil
	}
	if len(doc) != 1 {
		return nil, fmt.Errorf("filter object must have exactly one key, got %d", len(doc))
	}
	for key, val := range doc {
		switch key {
		case "always":
			return alwaysFilter{}, nil
		case "never":
			return neverFilter{}, nil
		case "tags":
			return buildTagsFilter(val)
		case "attributes":
			return buildAttributesFilter(val)
		case "and", "or":
			var subDocs []map[string]json.RawMessage
			if err := json.Unmarshal(val, &subDocs); err != nil {
				return nil, fmt.Errorf("parse %q clauses: %w", key, err)
			}
			subs := make([]Filter, 0, len(subDocs))
			for _, sd := range subDocs {
				f, err := buildFilter(sd)
				if err != nil {
					return nil, err
				}
				subs = append(subs, f)
			}
			if key == "and" {
				return andFilter(subs), nil
			}
			return orFilter(subs), nil
		case "not":
			var subDoc map[string]json.RawMessage
			if err := json.Unmarshal(val, &subDoc); err != nil {
				return nil, fmt.Errorf("parse \"not\" clause: %w", err)
			}
			sub, err := buildFilter(subDoc)
			if err != nil {
				return nil, err
			}
			return notFilter{sub}, nil
		default:
			return nil, fmt.Errorf("unknown filter key %q", key)
		}
	}
	return neverFilter{}, nil
}

type alwaysFilter struct{}

func (alwaysFilter) Match(*Item) bool { return true }

type neverFilter struct{}

func (neverFilter) Match(*Item) bool { return false }

type andFilter []Filter

func (f andFilter) Match(item *Item) bool {
	for _, sub := range f {
		if !sub.Match(item) {
			return false
		}
	}
	return true
}

type orFilter []Filter

func (f orFilter) Match(item *Item) bool {
	for _, sub := range f {
		if sub.Match(item) {
			return true
		}
	}
	return false
}

type notFilter struct {
	sub Filter
}

func (f notFilter) Match(item *Item) bool { return !f.sub.Match(item) }

type tagMatch struct {
	Name            string `json:"name"`
	Value           string `json:"value"`
	ValueStartsWith string `json:"valueStartsWith"`
}

type tagsFilter []tagMatch

func buildTagsFilter(raw json.RawMessage) (Filter, error) {
	var matches []tagMatch
	if err := json.Unmarshal(raw, &matches); err != nil {
		return nil, fmt.Errorf("parse \"tags\" clauses: %w", err)
	}
	for _, m := range matches {
		if m.Name == "" {
			return nil, fmt.Errorf("tag filter requires a name")
		}
		if m.Value != "" && m.ValueStartsWith != "" {
			return nil, fmt.Errorf("tag filter %q: value and valueStartsWith are exclusive", m.Name)
		}
	}
	return tagsFilter(matches), nil
}

// Match requires every configured tag clause to match some item tag.
func (f tagsFilter) Match(item *Item) bool {
	for _, m := range f {
		if !matchTag(m, item) {
			return false
		}
	}
	return true
}

func matchTag(m tagMatch, item *Item) bool {
	name := []byte(m.Name)
	for _, tag := range item.Tags {
		if !bytes.Equal(tag.Name, name) {
			continue
		}
		switch {
		case m.Value != "":
			if bytes.Equal(tag.Value, []byte(m.Value)) {
				return true
			}
		case m.ValueStartsWith != "":
			if bytes.HasPrefix(tag.Value, []byte(m.ValueStartsWith)) {
				return true
			}
		default:
			// Name-only clause: presence is enough.
			return true
		}
	}
	return false
}

type attributesFilter struct {
	OwnerAddress  string `json:"owner_address"`
	SignatureType int    `json:"signature_type"`
}

func buildAttributesFilter(raw json.RawMessage) (Filter, error) {
	var f attributesFilter
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse \"attributes\" clause: %w", err)
	}
	if f.OwnerAddress == "" && f.SignatureType == 0 {
		return nil, fmt.Errorf("empty \"attributes\" clause")
	}
	return f, nil
}

func (f attributesFilter) Match(item *Item) bool {
	if f.OwnerAddress != "" && item.OwnerAddress != f.OwnerAddress {
		return false
	}
	if f.SignatureType != 0 && item.SignatureType != f.SignatureType {
		return false
	}
	return true
}
