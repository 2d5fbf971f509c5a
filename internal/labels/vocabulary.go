package labels

// Vocabulary is a closed set of permitted class names.
type Vocabulary struct {
	names []string
	set   map[string]struct{}
}

// NewVocabulary builds a vocabulary from names. Duplicates are ignored.
func NewVocabulary(names ...string) Vocabulary {
	v := Vocabulary{set: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if _, dup := v.set[n]; dup {
			continue
		}
		v.set[n] = struct{}{}
		v.names = append(v.names, n)
	}
	return v
}

// Contains reports whether name is a permitted class.
func (v Vocabulary) Contains(name string) bool {
	_, ok := v.set[name]
	return ok
}

// Len returns the number of classes.
func (v Vocabulary) Len() int { return len(v.names) }
