package sanitizer

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trim spaces",
			input: "  Ada Lovelace  ",
			want:  "Ada Lovelace",
		},
		{
			name:  "multiple spaces between words",
			input: "Ada    Lovelace",
			want:  "Ada Lovelace",
		},
		{
			name:  "tabs and newlines",
			input: "Ada\t\nLovelace",
			want:  "Ada Lovelace",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   \t\n  ",
			want:  "",
		},
		{
			name:  "preserve accents",
			input: " José Álvarez ",
			want:  "José Álvarez",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeName(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := NormalizeName(got); again != got {
				t.Errorf("NormalizeName is not idempotent: %q -> %q", got, again)
			}
		})
	}
}
