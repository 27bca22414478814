package language

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"zh", "zh-CN"},
		{"Chinese", "zh-CN"},
		{"en", "en-US"},
		{"english", "en-US"},
		{"EN-us", "en-US"},
		{"ja", "ja"},
		{"korean", "ko"},
		{"  fr ", "fr"},
		{"tlh", "tlh"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTranscriptionHint(t *testing.T) {
	if got := TranscriptionHint("english"); got != "en" {
		t.Fatalf("english target hint = %q", got)
	}
	if got := TranscriptionHint("en-GB"); got != "en" {
		t.Fatalf("en-GB target hint = %q", got)
	}
	if got := TranscriptionHint("zh-CN"); got != "zh" {
		t.Fatalf("chinese target hint = %q", got)
	}
}

func TestDeepLCode(t *testing.T) {
	if code, ok := DeepLCode("english"); !ok || code != "EN-US" {
		t.Fatalf("DeepLCode(english) = %q, %v", code, ok)
	}
	if code, ok := DeepLCode("zh"); !ok || code != "ZH" {
		t.Fatalf("DeepLCode(zh) = %q, %v", code, ok)
	}
	if _, ok := DeepLCode("xx"); ok {
		t.Fatal("expected unknown code to be rejected")
	}
}

func TestSupportAndDisplay(t *testing.T) {
	if !IsSupported("chinese") || IsSupported("klingon") {
		t.Fatal("unexpected support result")
	}
	if Base("zh-CN") != "zh" {
		t.Fatalf("Base(zh-CN) = %q", Base("zh-CN"))
	}
	if got := DisplayName("ja"); got != "Japanese" {
		t.Fatalf("DisplayName(ja) = %q", got)
	}
	if got := DisplayName(""); got != "Unknown" {
		t.Fatalf("DisplayName(empty) = %q", got)
	}
}
