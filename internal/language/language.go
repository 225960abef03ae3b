// Package language lists the spoken languages a transcription request may
// name. An empty code leaves detection to the provider.
package language

import (
	"fmt"
	"sort"
)

type Language struct {
	Code       string // ISO 639-1
	Name       string
	NativeName string
}

// Auto is the empty code.
var Auto = Language{Name: "Auto-detect"}

// Default is the consultation language.
const Default = "pt"

// Whisper's supported set.
var languages = []Language{
	{"af", "Afrikaans", "Afrikaans"},
	{"ar", "Arabic", "العربية"},
	{"hy", "Armenian", "Հայերեն"},
	{"az", "Azerbaijani", "Azərbaycan"},
	{"be", "Belarusian", "Беларуская"},
	{"bs", "Bosnian", "Bosanski"},
	{"bg", "Bulgarian", "Български"},
	{"ca", "Catalan", "Català"},
	{"zh", "Chinese", "中文"},
	{"hr", "Croatian", "Hrvatski"},
	{"cs", "Czech", "Čeština"},
	{"da", "Danish", "Dansk"},
	{"nl", "Dutch", "Nederlands"},
	{"en", "English", "English"},
	{"et", "Estonian", "Eesti"},
	{"fi", "Finnish", "Suomi"},
	{"fr", "French", "Français"},
	{"gl", "Galician", "Galego"},
	{"de", "German", "Deutsch"},
	{"el", "Greek", "Ελληνικά"},
	{"he", "Hebrew", "עברית"},
	{"hi", "Hindi", "हिन्दी"},
	{"hu", "Hungarian", "Magyar"},
	{"is", "Icelandic", "Íslenska"},
	{"id", "Indonesian", "Bahasa Indonesia"},
	{"it", "Italian", "Italiano"},
	{"ja", "Japanese", "日本語"},
	{"kn", "Kannada", "ಕನ್ನಡ"},
	{"kk", "Kazakh", "Қазақ"},
	{"ko", "Korean", "한국어"},
	{"lv", "Latvian", "Latviešu"},
	{"lt", "Lithuanian", "Lietuvių"},
	{"mk", "Macedonian", "Македонски"},
	{"ms", "Malay", "Bahasa Melayu"},
	{"mr", "Marathi", "मराठी"},
	{"mi", "Maori", "Māori"},
	{"ne", "Nepali", "नेपाली"},
	{"no", "Norwegian", "Norsk"},
	{"fa", "Persian", "فارسی"},
	{"pl", "Polish", "Polski"},
	{"pt", "Portuguese", "Português"},
	{"ro", "Romanian", "Română"},
	{"ru", "Russian", "Русский"},
	{"sr", "Serbian", "Српски"},
	{"sk", "Slovak", "Slovenčina"},
	{"sl", "Slovenian", "Slovenščina"},
	{"es", "Spanish", "Español"},
	{"sw", "Swahili", "Kiswahili"},
	{"sv", "Swedish", "Svenska"},
	{"tl", "Tagalog", "Tagalog"},
	{"ta", "Tamil", "தமிழ்"},
	{"th", "Thai", "ไทย"},
	{"tr", "Turkish", "Türkçe"},
	{"uk", "Ukrainian", "Українська"},
	{"ur", "Urdu", "اردو"},
	{"vi", "Vietnamese", "Tiếng Việt"},
	{"cy", "Welsh", "Cymraeg"},
}

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(languages)+1)
	m[""] = Auto
	for _, l := range languages {
		m[l.Code] = l
	}
	return m
}()

// FromCode returns Auto for unknown codes.
func FromCode(code string) Language {
	if l, ok := byCode[code]; ok {
		return l
	}
	return Auto
}

func IsValidCode(code string) bool {
	_, ok := byCode[code]
	return ok
}

// List returns the languages sorted by English name, the default first.
func List() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Code == Default) != (out[j].Code == Default) {
			return out[i].Code == Default
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Label is the menu text for a code, e.g. "Portuguese (Português)".
func Label(code string) string {
	l := FromCode(code)
	if l.Code == "" {
		return l.Name
	}
	if l.NativeName == l.Name {
		return l.Name
	}
	return fmt.Sprintf("%s (%s)", l.Name, l.NativeName)
}
