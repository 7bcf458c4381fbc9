package enigma2

// Catalog maps selectable source names to service references, in bouquet order.
type Catalog struct {
	names []string
	refs  map[string]string
}

// BuildCatalog builds a catalogue from a bouquet's services, skipping
// entries that are not tunable. A repeated name keeps its first position and
// its last reference.
func BuildCatalog(services []Service) *Catalog {
	c := &Catalog{refs: make(map[string]string, len(services))}
	for _, s := range services {
		if !s.Tunable() {
			continue
		}
		if _, seen := c.refs[s.Name]; !seen {
			c.names = append(c.names, s.Name)
		}
		c.refs[s.Name] = s.Reference
	}
	return c
}

// Names returns the source names in order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

// Ref returns the service reference for a source name.
func (c *Catalog) Ref(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	ref, ok := c.refs[name]
	return ref, ok
}

// Len returns the number of sources.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}
