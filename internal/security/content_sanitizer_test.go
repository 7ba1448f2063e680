package security

import (
	"strings"
	"testing"
)

func TestSanitize_PlainTextUnchanged(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	inputs := []string{
		"屋根の修理は来週の火曜日で大丈夫です",
		"Please send the invoice by Friday",
		"line 1\nline 2",
	}
	for _, in := range inputs {
		if got := sanitizer.Sanitize(in); got != in {
			t.Errorf("Sanitize(%q) = %q, want unchanged", in, got)
		}
	}
}

// TestSanitize_StripsAllTags はタグが全て除去されテキストのみ残ることを検証する。
func TestSanitize_StripsAllTags(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	tests := []struct {
		name       string
		input      string
		want       string
		wantAbsent []string
	}{
		{
			name:  "段落タグが除去される",
			input: "<p>見積もりを確認しました</p>",
			want:  "見積もりを確認しました",
		},
		{
			name:       "scriptは中身ごと除去される",
			input:      `<script>alert('xss')</script>了解です`,
			want:       "了解です",
			wantAbsent: []string{"alert"},
		},
		{
			name:       "styleは中身ごと除去される",
			input:      `<style>body{display:none}</style>OK`,
			want:       "OK",
			wantAbsent: []string{"display"},
		},
		{
			name:       "リンクはテキストのみ残る",
			input:      `<a href="https://evil.example" onclick="steal()">こちら</a>`,
			want:       "こちら",
			wantAbsent: []string{"href", "onclick", "evil.example"},
		},
		{
			name:       "iframeが除去される",
			input:      `見てください<iframe src="https://evil.example"></iframe>`,
			want:       "見てください",
			wantAbsent: []string{"iframe"},
		},
		{
			name:       "imgのonerrorが除去される",
			input:      `<img src=x onerror="alert(1)">写真です`,
			want:       "写真です",
			wantAbsent: []string{"onerror", "<img"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestSanitize_KeepsSpecialCharactersUnescaped は記号が文字参照に変換されず保存されることを検証する。
func TestSanitize_KeepsSpecialCharactersUnescaped(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"Tom & Jerry's <3 offer", "Tom & Jerry's <3 offer"},
		{`He said "5 > 3"`, `He said "5 > 3"`},
		{"<b>A&amp;B</b>", "A&B"},
		{strings.Repeat("&", 10), strings.Repeat("&", 10)},
	}
	for _, tt := range tests {
		if got := sanitizer.Sanitize(tt.input); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitize_TrimsWhitespace(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	if got := sanitizer.Sanitize("  \n hello \t "); got != "hello" {
		t.Errorf("Sanitize = %q, want %q", got, "hello")
	}
}

// TestSanitize_TagsOnlyBecomesEmpty はタグのみの本文が空になることを検証する。
// メッセージサービスは空になった本文を検証エラーとして扱う。
func TestSanitize_TagsOnlyBecomesEmpty(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	if got := sanitizer.Sanitize("<script>alert(1)</script>"); got != "" {
		t.Errorf("Sanitize = %q, want empty", got)
	}
	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	in := `<b>太字</b>とテキスト`
	once := sanitizer.Sanitize(in)
	if twice := sanitizer.Sanitize(in); once != twice {
		t.Errorf("Sanitize is not deterministic: %q vs %q", once, twice)
	}
}
