package translit

import "strings"

var romajiToKana = map[string]string{
	"a": "あ", "i": "い", "u": "う", "e": "え", "o": "お",
	"ka": "か", "ki": "き", "ku": "く", "ke": "け", "ko": "こ",
	"ga": "が", "gi": "ぎ", "gu": "ぐ", "ge": "げ", "go": "ご",
	"sa": "さ", "shi": "し", "si": "し", "su": "す", "se": "せ", "so": "そ",
	"za": "ざ", "ji": "じ", "zi": "じ", "zu": "ず", "ze": "ぜ", "zo": "ぞ",
	"ta": "た", "chi": "ち", "ti": "ち", "tsu": "つ", "tu": "つ", "te": "て", "to": "と",
	"da": "だ", "di": "ぢ", "du": "づ", "de": "で", "do": "ど",
	"na": "な", "ni": "に", "nu": "ぬ", "ne": "ね", "no": "の",
	"ha": "は", "hi": "ひ", "fu": "ふ", "hu": "ふ", "he": "へ", "ho": "ほ",
	"ba": "ば", "bi": "び", "bu": "ぶ", "be": "べ", "bo": "ぼ",
	"pa": "ぱ", "pi": "ぴ", "pu": "ぷ", "pe": "ぺ", "po": "ぽ",
	"ma": "ま", "mi": "み", "mu": "む", "me": "め", "mo": "も",
	"ya": "や", "yu": "ゆ", "yo": "よ",
	"ra": "ら", "ri": "り", "ru": "る", "re": "れ", "ro": "ろ",
	"wa": "わ", "wo": "を", "n'": "ん",
	"kya": "きゃ", "kyu": "きゅ", "kyo": "きょ",
	"gya": "ぎゃ", "gyu": "ぎゅ", "gyo": "ぎょ",
	"sha": "しゃ", "shu": "しゅ", "sho": "しょ",
	"ja": "じゃ", "ju": "じゅ", "jo": "じょ",
	"cha": "ちゃ", "chu": "ちゅ", "cho": "ちょ",
	"nya": "にゃ", "nyu": "にゅ", "nyo": "にょ",
	"hya": "ひゃ", "hyu": "ひゅ", "hyo": "ひょ",
	"bya": "びゃ", "byu": "びゅ", "byo": "びょ",
	"pya": "ぴゃ", "pyu": "ぴゅ", "pyo": "ぴょ",
	"mya": "みゃ", "myu": "みゅ", "myo": "みょ",
	"rya": "りゃ", "ryu": "りゅ", "ryo": "りょ",
}

// ToHiragana converts Hepburn romaji to hiragana. ok is false when some part of
// the input is not valid romaji.
func ToHiragana(romaji string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(romaji))
	if s == "" {
		return "", false
	}
	s = expandLongVowels(s)

	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == ' ' {
			i++
			continue
		}

		// doubled consonant becomes a small tsu
		if i+1 < len(s) && s[i] == s[i+1] && isConsonant(s[i]) && s[i] != 'n' {
			b.WriteString("っ")
			i++
			continue
		}
		// "tch" as in matcha
		if strings.HasPrefix(s[i:], "tch") {
			b.WriteString("っ")
			i++
			continue
		}

		matched := false
		for size := 3; size >= 1; size-- {
			if i+size > len(s) {
				continue
			}
			if kana, ok := romajiToKana[s[i:i+size]]; ok {
				b.WriteString(kana)
				i += size
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		// syllabic n before a consonant or at the end
		if s[i] == 'n' && (i+1 == len(s) || isConsonant(s[i+1]) && s[i+1] != 'y') {
			b.WriteString("ん")
			i++
			continue
		}
		return "", false
	}
	return b.String(), true
}

func expandLongVowels(s string) string {
	r := strings.NewReplacer("ā", "aa", "ī", "ii", "ū", "uu", "ē", "ee", "ō", "ou")
	return r.Replace(s)
}

func isConsonant(c byte) bool {
	return c >= 'a' && c <= 'z' && !strings.ContainsRune("aiueo", rune(c))
}
