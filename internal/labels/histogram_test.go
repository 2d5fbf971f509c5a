package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassHistogramCountAbsentIsZero(t *testing.T) {
	h := NewClassHistogram()
	assert.Equal(t, 0, h.Count("car"))
	// Reading an absent key must not insert it.
	assert.Empty(t, h.Entries())
}

func TestClassHistogramInsertionOrder(t *testing.T) {
	h := NewClassHistogram()
	for _, c := range []string{"truck", "car", "truck", "bus", "car", "truck"} {
		h.Add(c)
	}

	assert.Equal(t, []ClassCount{{"truck", 3}, {"car", 2}, {"bus", 1}}, h.Entries())
	assert.Equal(t, 6, h.Total())
	assert.Equal(t, 3, h.Count("truck"))
}

func TestClassHistogramAddNZeroKeepsPosition(t *testing.T) {
	h := NewClassHistogram()
	h.AddN("car", 0)
	h.Add("bus")
	assert.Equal(t, []ClassCount{{"car", 0}, {"bus", 1}}, h.Entries())
}

func TestVocabulary(t *testing.T) {
	v := NewVocabulary("car", "cyclist", "car")
	assert.Equal(t, 2, v.Len())
	assert.True(t, v.Contains("cyclist"))
	assert.False(t, v.Contains("truck"))

	def := DefaultOptions().Vocabulary
	for _, c := range []string{"car", "truck", "bus", "bicycle", "pedestrian", "traffic_cone", "barrier"} {
		assert.True(t, def.Contains(c), c)
	}
	assert.False(t, def.Contains("unknown_thing"))
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Path: "scene/labels/a.txt", Line: 2, Kind: KindSchema, Message: "expected 8 fields, got 2"}
	assert.Equal(t, "[ERROR] scene/labels/a.txt line 2: expected 8 fields, got 2", d.String())

	w := Diagnostic{Path: "b.txt", Line: 1, Kind: KindValueRange, Message: "x"}
	assert.Equal(t, SeverityWarning, w.Severity())
	assert.Equal(t, "value-range", KindValueRange.String())
}
