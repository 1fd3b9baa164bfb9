package moderation

import "testing"

func TestPreFilterCheck(t *testing.T) {
	t.Parallel()

	f := NewPreFilter(
		[]string{"Free Money", "t.me/scam"},
		[]string{`\bc[ау]sino\b`, "["}, // second pattern is invalid and skipped
	)

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "keyword case insensitive",
			text: "get FREE MONEY now",
			want: "keyword:free money",
		},
		{
			name: "regex hit",
			text: "visit our Casino tonight",
			want: "regex:(?i)\\bc[ау]sino\\b",
		},
		{
			name: "clean text",
			text: "see you all tomorrow",
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := f.Check(tt.text); got != tt.want {
				t.Fatalf("Check(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
