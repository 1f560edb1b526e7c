package utils

import (
	"strings"
	"unicode"
)

// Language codes
const (
	LangEnglish  = "en"
	LangHebrew   = "he"
	LangArabic   = "ar"
	LangRussian  = "ru"
	LangGreek    = "el"
	LangChinese  = "zh"
	LangJapanese = "ja"
	LangKorean   = "ko"
	LangThai     = "th"
)

// Language represents a detected language
type Language struct {
	Code       string
	Name       string
	Native     string
	Confidence float64
}

type script struct {
	code, name, native string
	table              *unicode.RangeTable
}

var scripts = []script{
	{LangHebrew, "Hebrew", "עברית", unicode.Hebrew},
	{LangArabic, "Arabic", "العربية", unicode.Arabic},
	{LangRussian, "Russian", "Русский", unicode.Cyrillic},
	{LangGreek, "Greek", "Ελληνικά", unicode.Greek},
	{LangKorean, "Korean", "한국어", unicode.Hangul},
	{LangThai, "Thai", "ไทย", unicode.Thai},
	{LangChinese, "Chinese", "中文", unicode.Han},
}

var english = Language{Code: LangEnglish, Name: "English", Native: "English"}

// DetectLanguage guesses the language of a message from the scripts its letters use.
// Latin text is reported as English; the prompt asks the model to mirror the sender anyway.
func DetectLanguage(text string) Language {
	text = strings.TrimSpace(text)
	if text == "" {
		return english
	}

	counts := make([]int, len(scripts))
	kana := 0
	letters := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.In(r, unicode.Hiragana, unicode.Katakana) {
			kana++
			continue
		}
		for i, s := range scripts {
			if unicode.Is(s.table, r) {
				counts[i]++
				break
			}
		}
	}
	if letters == 0 {
		return english
	}

	// Kana only occurs in Japanese, which also uses Han
	if float64(kana)/float64(letters) > 0.05 {
		return Language{Code: LangJapanese, Name: "Japanese", Native: "日本語", Confidence: float64(kana+counts[len(scripts)-1]) / float64(letters)}
	}

	best, bestRatio := -1, 0.0
	for i, n := range counts {
		ratio := float64(n) / float64(letters)
		if ratio > 0.1 && ratio > bestRatio {
			best, bestRatio = i, ratio
		}
	}
	if best < 0 {
		lang := english
		lang.Confidence = 1 - float64(sum(counts))/float64(letters)
		return lang
	}

	s := scripts[best]
	return Language{Code: s.code, Name: s.name, Native: s.native, Confidence: bestRatio}
}

// LanguageInstruction tells the model which language to answer in
func LanguageInstruction(lang Language) string {
	if lang.Code == LangEnglish || lang.Code == "" {
		return "Reply in the same language as the customer's message."
	}
	return "Reply in " + lang.Name + " (" + lang.Native + ")."
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
