package symtab

import "testing"

func TestHashTablePutGetIsCaseInsensitive(t *testing.T) {
	tbl := NewHashTable(8)
	tbl.Put("Counter", &Symbol{Name: "counter"})

	if _, ok := tbl.Get("COUNTER"); !ok {
		t.Errorf("expected case-insensitive lookup to find Counter")
	}
	if tbl.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", tbl.Len())
	}
}

func TestHashTablePutReplacesExisting(t *testing.T) {
	tbl := NewHashTable(8)
	tbl.Put("x", &Symbol{Name: "x", ParamCount: 1})
	tbl.Put("x", &Symbol{Name: "x", ParamCount: 2})

	sym, ok := tbl.Get("x")
	if !ok || sym.ParamCount != 2 {
		t.Errorf("expected replaced symbol with ParamCount 2, got %+v", sym)
	}
	if tbl.Len() != 1 {
		t.Errorf("expected 1 entry after replace, got %d", tbl.Len())
	}
}

func TestHashTableDelete(t *testing.T) {
	tbl := NewHashTable(8)
	tbl.Put("x", &Symbol{Name: "x"})
	tbl.Delete("x")
	if _, ok := tbl.Get("x"); ok {
		t.Errorf("expected x to be gone after Delete")
	}
}

func TestProcedureTableByAddress(t *testing.T) {
	pt := NewProcedureTable()
	sym := &Symbol{Name: "Fibonacci", ByteOffset: 128}
	pt.Register(sym)

	got, ok := pt.ByAddress(128)
	if !ok || got.Name != "fibonacci" {
		t.Errorf("expected to find Fibonacci at offset 128, got %+v", got)
	}

	got, ok = pt.ByName("FIBONACCI")
	if !ok || got.ByteOffset != 128 {
		t.Errorf("expected case-insensitive name lookup, got %+v", got)
	}
}
