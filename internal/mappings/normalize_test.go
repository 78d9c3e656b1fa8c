package mappings

import (
	"testing"
)

func TestNormalizeExternalSku(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Already normalized", "acme-widget-l", "acme-widget-l"},
		{"Upper case folds", "ACME-WIDGET-L", "acme-widget-l"},
		{"Mixed case folds", "Acme-Widget-L", "acme-widget-l"},
		{"Leading and trailing space", "  acme-widget-l  ", "acme-widget-l"},
		{"Inner whitespace collapses", "acme   widget\tl", "acme widget l"},
		{"Tabs and newlines collapse", "acme\nwidget", "acme widget"},
		{"Whitespace only", "   \t ", ""},
		{"Empty string", "", ""},
		{"Unicode case folding", "ÄPFEL-01", "äpfel-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeExternalSku(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeExternalSku(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeExternalSkuIdempotent(t *testing.T) {
	inputs := []string{"ACME-WIDGET-L", "  a  b  c ", "äpfel", "sku 001"}
	for _, input := range inputs {
		once := NormalizeExternalSku(input)
		twice := NormalizeExternalSku(once)
		if once != twice {
			t.Errorf("NormalizeExternalSku not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestNormalizeLocationCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Lower to upper", "phx3", "PHX3"},
		{"Trimmed", "  phx3 ", "PHX3"},
		{"Inner whitespace collapses", "east  coast 1", "EAST COAST 1"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeLocationCode(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeLocationCode(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"café", "cafe"},
		{"Müller", "Muller"},
		{"Žičara", "Zicara"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseBoolToken(t *testing.T) {
	tests := []struct {
		input string
		value bool
		ok    bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"t", true, true},
		{"yes", true, true},
		{"y", true, true},
		{"1", true, true},
		{"active", true, true},
		{"false", false, true},
		{"f", false, true},
		{"no", false, true},
		{"n", false, true},
		{"0", false, true},
		{"inactive", false, true},
		{" true ", true, true},
		{"maybe", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			value, ok := ParseBoolToken(tt.input)
			if value != tt.value || ok != tt.ok {
				t.Errorf("ParseBoolToken(%q) = (%v, %v), want (%v, %v)", tt.input, value, ok, tt.value, tt.ok)
			}
		})
	}
}
