package types

// Taxonomy is a named classification restricting which object types its
// terms can apply to. ObjectTypes keeps registration order; that order is
// the canonical order of the counted-types marker.
type Taxonomy struct {
	Name        string   `json:"name"`
	ObjectTypes []string `json:"object_types"`
}

// ObjectType is a kind of entity that can carry taxonomy terms.
// Object types that are not Countable have no update-count behaviour and
// always report a count of zero.
type ObjectType struct {
	Name      string `json:"name"`
	Countable bool   `json:"countable"`
}

// HasObjectType reports whether name is one of the taxonomy's object types.
func (t Taxonomy) HasObjectType(name string) bool {
	for _, ot := range t.ObjectTypes {
		if ot == name {
			return true
		}
	}
	return false
}
