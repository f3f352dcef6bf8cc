// Term meta key layout for the per-type count cache.
package counts

import (
	"encoding/json"
	"strconv"
)

// CountedTypesKey holds the JSON array of object types counted at the last
// full recompute of a term.
const CountedTypesKey = "_counted_object_types"

// objectCountKeyPrefix namespaces the per-type count entries.
const objectCountKeyPrefix = "_object_count_"

// ObjectCountKey returns the meta key caching the count for objectType.
func ObjectCountKey(objectType string) string {
	return objectCountKeyPrefix + objectType
}

func encodeCountedTypes(objectTypes []string) (string, error) {
	if objectTypes == nil {
		objectTypes = []string{}
	}
	b, err := json.Marshal(objectTypes)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeCountedTypes parses a stored marker. A malformed marker reports
// false so the caller treats it as absent.
func decodeCountedTypes(value string) ([]string, bool) {
	var objectTypes []string
	if err := json.Unmarshal([]byte(value), &objectTypes); err != nil {
		return nil, false
	}
	return objectTypes, true
}

func encodeCount(n int) string {
	return strconv.Itoa(n)
}

// decodeCount parses a stored count entry. Negative or non-numeric values
// report false.
func decodeCount(value string) (int, bool) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func sameTypes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsType(objectTypes []string, objectType string) bool {
	for _, ot := range objectTypes {
		if ot == objectType {
			return true
		}
	}
	return false
}
