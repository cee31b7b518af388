package packet

import (
	"strings"
	"testing"
)

func TestTypeName(t *testing.T) {
	tests := []struct {
		code int32
		want string
	}{
		{60, "SWIFT_BAT_GRB_ALERT"},
		{110, "FERMI_GBM_ALERT"},
		{150, "LVC_PRELIMINARY"},
		{3, "IMALIVE"},
		{40, "HETE_S/C_ALERT"},
		{164, "LVC_RETRACTION"},
		{173, "ICECUBE_ASTROTRACK_GOLD"},
		{189, "GECAM_GND"},
		{999, "UNKNOWN_999"},
		{0, "UNKNOWN_0"},
		{-4, "UNKNOWN_-4"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := TypeName(tt.code); got != tt.want {
				t.Errorf("TypeName(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestTypeCode(t *testing.T) {
	code, ok := TypeCode("FERMI_GBM_FLT_POS")
	if !ok || code != 111 {
		t.Errorf("TypeCode(FERMI_GBM_FLT_POS) = %d, %v; want 111, true", code, ok)
	}
	if _, ok := TypeCode("UNKNOWN_999"); ok {
		t.Error("synthesised names must not resolve")
	}
}

func TestTypesTable(t *testing.T) {
	entries := Types()
	if len(entries) < 130 {
		t.Errorf("type table has %d entries, want the full published code space", len(entries))
	}

	seen := make(map[string]int32)
	for i, e := range entries {
		if i > 0 && entries[i-1].Code >= e.Code {
			t.Fatalf("entries not sorted at %d: %d >= %d", i, entries[i-1].Code, e.Code)
		}
		if strings.HasPrefix(e.Name, "UNKNOWN_") {
			t.Errorf("code %d has reserved name %q", e.Code, e.Name)
		}
		if prev, dup := seen[e.Name]; dup {
			t.Errorf("mnemonic %q used by codes %d and %d", e.Name, prev, e.Code)
		}
		seen[e.Name] = e.Code
	}
}
