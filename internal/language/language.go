package language

import (
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type entry struct {
	code      string   // canonical pipeline code
	deepl     string   // DeepL target code
	words     []string // accepted aliases
	supported bool
}

var languages = []entry{
	{"zh-CN", "ZH", []string{"zh", "zh-cn", "chinese", "zho", "chi"}, true},
	{"zh-TW", "ZH", []string{"zh-tw"}, true},
	{"en-US", "EN-US", []string{"en", "en-us", "english", "eng"}, true},
	{"en-GB", "EN-GB", []string{"en-gb"}, true},
	{"ja", "JA", []string{"japanese", "jpn"}, true},
	{"ko", "KO", []string{"korean", "kor"}, true},
	{"fr", "FR", []string{"french", "fra", "fre"}, true},
	{"de", "DE", []string{"german", "deu", "ger"}, true},
	{"es", "ES", []string{"spanish", "spa"}, true},
	{"it", "IT", []string{"italian", "ita"}, true},
	{"ru", "RU", []string{"russian", "rus"}, true},
	{"pt", "PT", []string{"portuguese", "por"}, true},
}

var byAlias map[string]*entry

func init() {
	byAlias = make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		byAlias[strings.ToLower(e.code)] = e
		for _, w := range e.words {
			byAlias[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	return byAlias[code]
}

// Normalize maps aliases such as "zh", "chinese", "en" or "english" onto the
// canonical codes zh-CN and en-US. Unknown codes are returned trimmed.
func Normalize(code string) string {
	if e := lookup(code); e != nil {
		return e.code
	}
	return strings.TrimSpace(code)
}

// IsSupported reports whether code normalizes to a language the pipeline
// accepts.
func IsSupported(code string) bool {
	e := lookup(code)
	return e != nil && e.supported
}

// Base returns the ISO 639-1 base of code ("zh-CN" -> "zh"), or "" when the
// code cannot be parsed.
func Base(code string) string {
	tag, err := xlang.Parse(Normalize(code))
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == xlang.No {
		return ""
	}
	return base.String()
}

// IsEnglish reports whether code refers to any English variant.
func IsEnglish(code string) bool {
	return Base(code) == "en"
}

// TranscriptionHint is the language hint passed to speech recognition:
// "en" for English targets, "zh" otherwise.
func TranscriptionHint(targetLanguage string) string {
	if IsEnglish(targetLanguage) {
		return "en"
	}
	return "zh"
}

// DeepLCode returns the DeepL target code for code.
func DeepLCode(code string) (string, bool) {
	if e := lookup(code); e != nil && e.deepl != "" {
		return e.deepl, true
	}
	return "", false
}

// DisplayName returns the English name of the language, falling back to the
// code itself.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	tag, err := xlang.Parse(Normalize(trimmed))
	if err != nil {
		return trimmed
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return trimmed
}
