package value

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	gofuzz "github.com/google/gofuzz"
)

func TestMakeStringFixedLengthTruncatesAndPads(t *testing.T) {
	v := MakeString("hi", 5)
	if got := v.AsString(); got != "hi   " {
		t.Errorf("expected padded string %q, got %q", "hi   ", got)
	}

	v2 := MakeString("too long for five", 5)
	if got := v2.AsString(); got != "too l" {
		t.Errorf("expected truncated string %q, got %q", "too l", got)
	}
}

func TestCopyIsDeepForAggregates(t *testing.T) {
	orig := MakeString("hello", 0)
	dup := Copy(orig)
	dup.str.Buf[0] = 'H'

	if orig.AsString() != "hello" {
		t.Errorf("copy mutated original: %q", orig.AsString())
	}
	if dup.AsString() != "Hello" {
		t.Errorf("expected mutated copy, got %q", dup.AsString())
	}
}

func TestCopyThenFreeLeavesOriginalUntouched(t *testing.T) {
	fz := gofuzz.New().NilChance(0).NumElements(1, 4)
	for i := 0; i < 20; i++ {
		var s string
		fz.Fuzz(&s)
		orig := MakeArray([]int{0}, []int{2}, String, "string")
		for j := range orig.arr.Elements {
			orig.arr.Elements[j] = MakeString(s, 0)
		}
		before := Copy(orig)

		dup := Copy(orig)
		Free(&dup)

		if diff := cmp.Diff(before.arr.Elements, orig.arr.Elements, cmp.AllowUnexported(Value{})); diff != "" {
			t.Fatalf("original mutated after freeing a copy (-before +after):\n%s", diff)
		}
	}
}

func TestPointerDisposeNullifiesAllAliases(t *testing.T) {
	target := new(Value)
	*target = MakeInt(42)

	a := MakePointer(target, "Integer")
	b := Copy(a) // alias sharing the same box

	Dispose(a)

	if !a.IsNil() {
		t.Errorf("expected a to be nil after Dispose")
	}
	if !b.IsNil() {
		t.Errorf("expected aliasing pointer b to also observe nil after Dispose")
	}
}

func TestIntDivTruncatesTowardZero(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{7, 2, 3},
		{-7, 2, -3},
		{7, -2, -3},
		{-7, -2, 3},
	}
	for _, c := range cases {
		r, err := Apply(OpIntDiv, MakeInt(c.a), MakeInt(c.b))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.AsInt() != c.want {
			t.Errorf("%d div %d = %d, want %d", c.a, c.b, r.AsInt(), c.want)
		}
	}
}

func TestModFollowsSignOfDivisor(t *testing.T) {
	cases := []struct{ a, b, want int64 }{
		{7, 3, 1},
		{-7, 3, 2},
		{7, -3, -2},
		{-7, -3, -1},
	}
	for _, c := range cases {
		r, err := Apply(OpMod, MakeInt(c.a), MakeInt(c.b))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.AsInt() != c.want {
			t.Errorf("%d mod %d = %d, want %d", c.a, c.b, r.AsInt(), c.want)
		}
	}
}

func TestByteIncWrapsAt255(t *testing.T) {
	v := MakeByte(255)
	wrapped, err := Inc(&v, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wrapped {
		t.Errorf("expected Inc to report a wrap at the Byte boundary")
	}
	if v.AsInt() != 0 {
		t.Errorf("expected Byte to wrap to 0, got %d", v.AsInt())
	}
}

func TestSuccOnLastEnumMemberFails(t *testing.T) {
	decl := &EnumDecl{TypeName: "Color", Members: []string{"Red", "Green", "Blue"}}
	v := MakeEnum(decl, 2)
	if _, err := Succ(v); err == nil {
		t.Errorf("expected RangeCheck error for Succ past last enum member")
	}
}

func TestIncThenDecRestoresOrdinal(t *testing.T) {
	kinds := []Value{MakeInt(10), MakeByte(10), MakeWord(10), MakeChar(10)}
	for _, v := range kinds {
		orig := v
		if _, err := Inc(&v, 5); err != nil {
			t.Fatalf("Inc failed: %v", err)
		}
		if _, err := Dec(&v, 5); err != nil {
			t.Fatalf("Dec failed: %v", err)
		}
		if v.AsInt() != orig.AsInt() {
			t.Errorf("Inc(x,5);Dec(x,5) did not restore %s: got %d want %d", orig.Kind, v.AsInt(), orig.AsInt())
		}
	}
}

func TestStringConcatenation(t *testing.T) {
	r, err := Apply(OpAdd, MakeString("Hello, ", 0), MakeString("world", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.AsString() != "Hello, world" {
		t.Errorf("got %q", r.AsString())
	}
}

func TestCompareCoercesIntAndReal(t *testing.T) {
	r, err := Apply(OpLess, MakeInt(3), MakeReal(Double, 3.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.AsBool() {
		t.Errorf("expected 3 < 3.5")
	}
}
