package attribute

import (
	"reflect"
	"testing"
)

func TestStringEquals(t *testing.T) {
	cases := []struct {
		name string
		a    String
		b    Attribute
		want bool
	}{
		{"equal strings", String("abc"), String("abc"), true},
		{"different strings", String("abc"), String("xyz"), false},
		{"different kind", String("abc"), fakeAttribute{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equals(tc.b); got != tc.want {
				t.Errorf("Equals = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStringHashConsistentWithEquals(t *testing.T) {
	a, b := String("same"), String("same")
	if a.Hash() != b.Hash() {
		t.Errorf("equal strings hashed differently: %d vs %d", a.Hash(), b.Hash())
	}

	c := String("different")
	if a.Hash() == c.Hash() {
		t.Errorf("distinct strings collided: both hashed to %d", a.Hash())
	}
}

func TestStringCloneIsIndependentValue(t *testing.T) {
	s := String("hello")
	clone := s.Clone()
	if !s.Equals(clone) {
		t.Errorf("clone %v does not equal original %v", clone, s)
	}
}

func TestCloneableCloneValue(t *testing.T) {
	c := cloneableKind{Cloneable: Cloneable[cloneableKind]{}, payload: "x"}
	cloned := c.Clone().(cloneableKind)
	if cloned.payload != "x" {
		t.Errorf("CloneValue payload = %q, want %q", cloned.payload, "x")
	}
}

type fakeAttribute struct{}

func (fakeAttribute) Clone() Attribute            { return fakeAttribute{} }
func (fakeAttribute) Type() reflect.Type          { return reflect.TypeOf(fakeAttribute{}) }
func (fakeAttribute) Equals(other Attribute) bool { _, ok := other.(fakeAttribute); return ok }
func (fakeAttribute) Hash() uint64                { return 0 }
func (fakeAttribute) String() string              { return "fake" }

type cloneableKind struct {
	Cloneable[cloneableKind]
	payload string
}

func (c cloneableKind) Clone() Attribute            { return c.CloneValue(c) }
func (c cloneableKind) Type() reflect.Type          { return reflect.TypeOf(c) }
func (c cloneableKind) Equals(other Attribute) bool { o, ok := other.(cloneableKind); return ok && o.payload == c.payload }
func (c cloneableKind) Hash() uint64                { return 0 }
func (c cloneableKind) String() string              { return c.payload }
