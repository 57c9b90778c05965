package enums

import "testing"

func TestParseInventoryStatus(t *testing.T) {
	for _, raw := range []string{"in_stock", "out_of_stock", "discontinued"} {
		status, err := ParseInventoryStatus(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if !status.IsValid() || status.String() != raw {
			t.Fatalf("unexpected status %q", status)
		}
	}
	if _, err := ParseInventoryStatus("backordered"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if InventoryStatus("IN_STOCK").IsValid() {
		t.Fatalf("status matching is case sensitive")
	}
}
