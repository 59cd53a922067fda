package disjoint_set

import (
	"reflect"
	"testing"
)

func TestDSU_UnionAndRoot(t *testing.T) {
	d := NewDSU()
	a := d.Add("cluster-001")
	b := d.Add("cluster-002")
	c := d.Add("cluster-003")

	if rootB, _ := d.Root("cluster-002"); rootB != "cluster-002" {
		t.Fatalf("fresh set should be its own root, got %q", rootB)
	}

	d.Union(a, b)
	rootA, _ := d.Root("cluster-001")
	rootB, _ := d.Root("cluster-002")
	if rootA != "cluster-001" || rootB != "cluster-001" {
		t.Errorf("expected first argument to survive an equal-rank union, got %q and %q", rootA, rootB)
	}

	// The taller tree wins regardless of argument order
	d.Union(c, a)
	if rootC, _ := d.Root("cluster-003"); rootC != "cluster-001" {
		t.Errorf("expected cluster-001 to absorb cluster-003, got %q", rootC)
	}
}

func TestDSU_AddIsIdempotent(t *testing.T) {
	d := NewDSU()
	first := d.Add("x")
	second := d.Add("x")
	if first != second {
		t.Errorf("expected same index, got %d and %d", first, second)
	}
	if got := d.Members("x"); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("Members() = %v, want [x]", got)
	}
}

func TestDSU_Members(t *testing.T) {
	d := NewDSU()
	d.Add("b")
	d.Add("a")
	d.Add("c")
	d.Union(d.FindOrCreate("a"), d.FindOrCreate("b"))

	got := d.Members("b")
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Members() = %v", got)
	}
	if d.Members("missing") != nil {
		t.Error("expected nil members for unknown label")
	}
}

func TestDSU_RootMissing(t *testing.T) {
	d := NewDSU()
	if _, ok := d.Root("nope"); ok {
		t.Error("expected missing label to report false")
	}
}
