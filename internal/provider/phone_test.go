package provider

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(11) 98765-4321", "5511987654321"},
		{"11987654321", "5511987654321"},
		{"5511987654321", "5511987654321"},
		{"+5511987654321", "5511987654321"},
		{"55 11 98765 4321", "5511987654321"},
		{"11 3456-7890", "551134567890"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocalPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(11) 98765-4321", "11987654321"},
		{"5511987654321", "11987654321"},
		{"11987654321", "11987654321"},
	}
	for _, tt := range tests {
		if got := LocalPhone(tt.in); got != tt.want {
			t.Errorf("LocalPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
