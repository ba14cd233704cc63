package watch

import "testing"

func TestStrictEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"equal strings", "x", "x", true},
		{"different strings", "x", "y", false},
		{"equal ints", 3, 3, true},
		{"int vs string", 3, "3", false},
		{"both nil", nil, nil, true},
		{"one nil", nil, "x", false},
		{"slices never equal", []int{1}, []int{1}, false},
		{"maps never equal", map[string]int{}, map[string]int{}, false},
	}
	for _, c := range cases {
		if got := StrictEqual(c.a, c.b); got != c.want {
			t.Fatalf("%s: StrictEqual(%v, %v) = %v, want %v", c.name, c.a, c.b, got, c.want)
		}
	}
}

func TestStrictEqualPointerIdentity(t *testing.T) {
	type box struct{ v int }
	p1, p2 := &box{1}, &box{1}
	if !StrictEqual(p1, p1) {
		t.Fatal("pointer not equal to itself")
	}
	if StrictEqual(p1, p2) {
		t.Fatal("distinct pointers compared equal")
	}
}
