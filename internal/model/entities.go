package model

// EntityBag holds deduplicated named entities by type.
type EntityBag struct {
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
	People        []string `json:"people"`
	Method        Method   `json:"method"`
}

// Empty reports whether no entities were found.
func (b EntityBag) Empty() bool {
	return len(b.Organizations) == 0 && len(b.Locations) == 0 && len(b.People) == 0
}
