package security

import (
	"strings"
	"testing"
)

// TestSanitize_StripsTags はすべてのタグが除去され本文が残ることを検証する。
func TestSanitize_StripsTags(t *testing.T) {
	sanitizer := NewBodySanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "pタグが除去される",
			input: "<p>段落</p>",
			want:  "段落",
		},
		{
			name:  "入れ子のタグが除去される",
			input: "<div><strong>太字</strong>と<em>強調</em></div>",
			want:  "太字と強調",
		},
		{
			name:  "aタグはテキストだけ残る",
			input: `<a href="https://example.com">link</a>`,
			want:  "link",
		},
		{
			name:  "タグのない本文はそのまま",
			input: "plain reply body",
			want:  "plain reply body",
		},
		{
			name:  "削除済みセンチネルは変化しない",
			input: "[removed]",
			want:  "[removed]",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_RemovesScript はscriptタグが中身ごと除去されることを検証する。
func TestSanitize_RemovesScript(t *testing.T) {
	sanitizer := NewBodySanitizer()

	got := sanitizer.Sanitize(`before<script>alert("xss")</script>after`)
	if strings.Contains(got, "alert") || strings.Contains(got, "script") {
		t.Errorf("script content should be removed, got %q", got)
	}
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Errorf("surrounding text should remain, got %q", got)
	}
}

// TestSanitize_UnescapesEntities はアーカイブ由来のエスケープ済み文字が平文に戻ることを検証する。
func TestSanitize_UnescapesEntities(t *testing.T) {
	sanitizer := NewBodySanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"&gt; quoted line", "> quoted line"},
		{"fish &amp; chips", "fish & chips"},
		{"it's \"fine\"", "it's \"fine\""},
		{"日本語の本文", "日本語の本文"},
	}

	for _, tt := range tests {
		if got := sanitizer.Sanitize(tt.input); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewBodySanitizer()
	input := "<b>bold</b> text"

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(input)
	if first != second {
		t.Errorf("Sanitize is not deterministic: %q vs %q", first, second)
	}
}

func TestBodySanitizer_ImplementsInterface(t *testing.T) {
	var _ BodySanitizer = NewBodySanitizer()
}
