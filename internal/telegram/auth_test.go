package telegram

import "testing"

func TestCanonicalPhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "plus and separators",
			raw:      " +1 (555) 123-45-67 ",
			expected: "+15551234567",
		},
		{
			name:     "bare digits",
			raw:      "15551234567",
			expected: "15551234567",
		},
		{
			name:     "plus only after trim",
			raw:      "+7 999 000 11 22",
			expected: "+79990001122",
		},
		{
			name:     "no digits",
			raw:      "+-() ",
			expected: "",
		},
		{
			name:     "empty",
			raw:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonicalPhone(tt.raw); got != tt.expected {
				t.Errorf("canonicalPhone(%q) = %q, want %q", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		name     string
		phone    string
		expected string
	}{
		{
			name:     "long number",
			phone:    "+15551234567",
			expected: "**********67",
		},
		{
			name:     "two digits fully hidden",
			phone:    "12",
			expected: "**",
		},
		{
			name:     "single digit",
			phone:    "1",
			expected: "*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactPhone(tt.phone); got != tt.expected {
				t.Errorf("redactPhone(%q) = %q, want %q", tt.phone, got, tt.expected)
			}
		})
	}
}
