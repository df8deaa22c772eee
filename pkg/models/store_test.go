package models

import "testing"

func TestFieldKind_Indexable(t *testing.T) {
	tests := []struct {
		kind FieldKind
		want bool
	}{
		{FieldText, true},
		{FieldJSON, true},
		{FieldJSONCollection, true},
		{FieldInteger, false},
		{FieldReal, false},
		{FieldBool, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Indexable(); got != tt.want {
				t.Errorf("Indexable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSchema_Equal(t *testing.T) {
	a := Schema{"title": FieldText, "priority": FieldInteger}
	b := Schema{"priority": FieldInteger, "title": FieldText}
	if !a.Equal(b) {
		t.Error("schemas with same fields in different order should be equal")
	}

	c := Schema{"title": FieldText, "priority": FieldText}
	if a.Equal(c) {
		t.Error("schemas differing in a field's kind should not be equal")
	}

	d := Schema{"title": FieldText}
	if a.Equal(d) {
		t.Error("schemas with different field counts should not be equal")
	}
}
