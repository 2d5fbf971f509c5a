package labels

// ClassCount is one entry of a ClassHistogram.
type ClassCount struct {
	Class string
	Count int
}

// ClassHistogram counts occurrences per class name. Iteration follows the
// order in which classes were first added. The zero value is not usable; call
// NewClassHistogram.
type ClassHistogram struct {
	counts map[string]int
	order  []string
}

// NewClassHistogram returns an empty histogram.
func NewClassHistogram() *ClassHistogram {
	return &ClassHistogram{counts: make(map[string]int)}
}

// Add increments the count for class by one.
func (h *ClassHistogram) Add(class string) {
	h.AddN(class, 1)
}

// AddN increments the count for class by n. Classes added with n == 0 still
// take their place in the iteration order.
func (h *ClassHistogram) AddN(class string, n int) {
	if _, ok := h.counts[class]; !ok {
		h.order = append(h.order, class)
	}
	h.counts[class] += n
}

// Count returns the count for class, or 0 if it was never added.
func (h *ClassHistogram) Count(class string) int {
	return h.counts[class]
}


// Total returns the sum of all counts.
func (h *ClassHistogram) Total() int {
	total := 0
	for _, n := range h.counts {
		total += n
	}
	return total
}

// Entries returns (class, count) pairs in first-seen order.
func (h *ClassHistogram) Entries() []ClassCount {
	out := make([]ClassCount, 0, len(h.order))
	for _, c := range h.order {
		out = append(out, ClassCount{Class: c, Count: h.counts[c]})
	}
	return out
}
