package secobj

import "fmt"

// MapKind tells which payload a SectionMap currently holds.
type MapKind uint8

const (
	// MapNone means the map is unused
	MapNone MapKind = iota
	// MapInputSections stages input sections merged into an output section
	MapInputSections
	// MapLinkOrders holds the link order records of an output section
	MapLinkOrders
)

func (k MapKind) String() string {
	switch k {
	case MapInputSections:
		return "input-sections"
	case MapLinkOrders:
		return "link-orders"
	default:
		return "none"
	}
}

// LinkOrderKind is the kind of a link order record.
type LinkOrderKind uint8

const (
	// LinkOrderIndirect copies the bytes of an input section
	LinkOrderIndirect LinkOrderKind = iota
	// LinkOrderData fills the range with Data
	LinkOrderData
)

// LinkOrder maps a byte range of an output section to its source.
type LinkOrder struct {
	Kind   LinkOrderKind
	Offset uint64
	Size   uint64
	Input  *Section // LinkOrderIndirect
	Data   []byte   // LinkOrderData
}

// SectionMap is used twice during the life of an output section: first to
// stage the input sections being merged into it, then to hold its link
// order records. Only one interpretation is active at a time and accessors
// check it.
type SectionMap struct {
	kind   MapKind
	inputs []*Section
	orders []LinkOrder
}

// Kind returns the active interpretation.
func (m *SectionMap) Kind() MapKind {
	return m.kind
}

// AddInput stages an input section. It fails when the map holds link orders.
func (m *SectionMap) AddInput(s *Section) error {
	switch m.kind {
	case MapNone:
		m.kind = MapInputSections
	case MapInputSections:
	default:
		return fmt.Errorf("section map holds %s: %w", m.kind, ErrInvalidOperation)
	}
	m.inputs = append(m.inputs, s)
	return nil
}

// Inputs returns the staged input sections.
func (m *SectionMap) Inputs() ([]*Section, error) {
	if m.kind != MapInputSections {
		return nil, fmt.Errorf("section map holds %s: %w", m.kind, ErrInvalidOperation)
	}
	return m.inputs, nil
}

// AddLinkOrder appends a link order record. The first record switches the
// map from input staging to link orders; staged inputs are dropped.
func (m *SectionMap) AddLinkOrder(lo LinkOrder) {
	if m.kind != MapLinkOrders {
		m.kind = MapLinkOrders
		m.inputs = nil
	}
	m.orders = append(m.orders, lo)
}

// LinkOrders returns the link order records.
func (m *SectionMap) LinkOrders() ([]LinkOrder, error) {
	if m.kind != MapLinkOrders {
		return nil, fmt.Errorf("section map holds %s: %w", m.kind, ErrInvalidOperation)
	}
	return m.orders, nil
}

// Reset returns the map to MapNone.
func (m *SectionMap) Reset() {
	*m = SectionMap{}
}
