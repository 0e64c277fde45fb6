package main

import "testing"

func TestParseCatches(t *testing.T) {
	items, err := parseCatches([]string{"speckled trout=2@18.5, 20", "flounder=@16", "red_drum=1"})
	if err != nil {
		t.Fatalf("parseCatches: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Species != "speckled trout" || items[0].Count != 2 || len(items[0].Lengths) != 2 {
		t.Errorf("unexpected first item %+v", items[0])
	}
	if items[1].Count != 0 || len(items[1].Lengths) != 1 {
		t.Errorf("unexpected second item %+v", items[1])
	}

	catches := items.Catches()
	if len(catches) != 3 || catches[1].Count != 1 {
		t.Errorf("expected flounder to count its one length, got %+v", catches)
	}
}

func TestParseCatchesRejectsBadInput(t *testing.T) {
	for _, in := range []string{"redfish", "=2", "flounder=two"} {
		if _, err := parseCatches([]string{in}); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}
