package platform

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ListingID is a platform id that some endpoints send as a string and others as a number.
// Numbers keep their literal digits.
type ListingID string

func (id *ListingID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ListingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("listing id must be a string or a number: %s", b)
	}
	*id = ListingID(n.String())
	return nil
}

// DecodeFields decodes the named members of a JSON object one at a time into their targets.
// Members that fail to decode leave their target untouched and are returned sorted.
func DecodeFields(raw []byte, fields map[string]any) ([]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	var bad []string
	for key, dst := range fields {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			bad = append(bad, key)
		}
	}
	sort.Strings(bad)
	return bad, nil
}
