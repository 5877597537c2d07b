package langmix

import "strings"

// lexiconOrder fixes the candidate order used to break ties between languages.
var lexiconOrder = []string{"en", "es", "fr", "pt", "it", "de"}

var functionWords = map[string]string{
	"en": "the a an and or but of to in on at for with from by i you he she we they it me him her us them my your his its our their " +
		"this that these those is are was were be am do does did not no yes so if because as than then there here what how why where when who which",
	"es": "el la los las un una unos unas y o pero de del al en con por para que qué a yo tú él ella nosotros vosotros ellos ellas " +
		"me te se lo le mi tu su es son está están estoy eres soy muy no sí como cómo donde dónde cuando cuándo porque también más menos",
	"fr": "le la les un une des et ou mais de du au aux je tu il elle nous vous ils elles ne pas est suis sont ce cette que qui pour avec dans sur",
	"pt": "o os as um uma e ou mas de do da em no na com por para que eu você ele ela nós é são está não sim muito",
	"it": "il lo gli la le un uno una e o ma di del della in con per che io tu lui lei noi è sono non sì molto",
	"de": "der die das den dem ein eine und oder aber ich du er sie es wir ihr nicht ist bin sind mit für auf zu von",
}

var contentWords = map[string]string{
	"en": "hi hello hey love like want know think good great very really just thanks thank have has can will would go went going come see " +
		"look make time day today tomorrow people friend class study learn practice word words sentence say said tell need feel happy sad nice " +
		"okay ok well please sorry name language english teacher school food eat drink water again also more much many little right now there " +
		"let let's try answer question next great job keep",
	"es": "hola gracias bueno buena bien verte verdad amigo amiga mañana hoy ahora casa comer vamos voy quiero tengo hablar español playa " +
		"adiós noche día tarde perdón claro vale genial entiendo puedes repetir bonito feliz gusto mucho llamo estar ser",
	"fr": "bonjour merci oui non très bien salut ça va comment beaucoup aujourd'hui demain ami amie français revoir",
	"pt": "olá obrigado obrigada tudo bem bom boa português",
	"it": "ciao grazie buongiorno bene prego bello bella italiano amico",
	"de": "hallo danke bitte ja nein gut sehr deutsch freund heute morgen",
}

// loanwords are foreign words commonly borrowed into other languages.
var loanwords = map[string]string{
	"sushi": "ja", "ramen": "ja", "karaoke": "ja", "tsunami": "ja", "anime": "ja", "manga": "ja",
	"kimchi": "ko", "croissant": "fr", "café": "fr", "déjà": "fr", "kindergarten": "de",
	"pizza": "it", "spaghetti": "it", "fiesta": "es", "siesta": "es", "tortilla": "es", "tacos": "es", "taco": "es",
}

// functionGloss translates frequent interfering function words into English.
var functionGloss = map[string]map[string]string{
	"es": {"el": "the", "la": "the", "los": "the", "las": "the", "y": "and", "pero": "but", "de": "of", "con": "with",
		"en": "in", "por": "for", "para": "for", "que": "that", "muy": "very", "porque": "because", "también": "also"},
	"fr": {"le": "the", "la": "the", "les": "the", "et": "and", "mais": "but", "avec": "with", "pour": "for", "dans": "in"},
	"de": {"der": "the", "die": "the", "das": "the", "und": "and", "aber": "but", "mit": "with", "für": "for"},
}

type entry struct {
	langs    []string
	function map[string]bool
}

var lexicon = buildLexicon()

func buildLexicon() map[string]*entry {
	lex := make(map[string]*entry)
	add := func(lang, words string, function bool) {
		for _, w := range strings.Fields(words) {
			e, ok := lex[w]
			if !ok {
				e = &entry{function: make(map[string]bool)}
				lex[w] = e
			}
			if !contains(e.langs, lang) {
				e.langs = append(e.langs, lang)
			}
			if function {
				e.function[lang] = true
			}
		}
	}
	for _, lang := range lexiconOrder {
		add(lang, functionWords[lang], true)
		add(lang, contentWords[lang], false)
	}
	return lex
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

// diacriticHint guesses a language from letters typical of one orthography.
func diacriticHint(word string) (string, float64, bool) {
	switch {
	case strings.ContainsRune(word, 'ñ'):
		return "es", 0.8, true
	case strings.ContainsAny(word, "ãõ"):
		return "pt", 0.7, true
	case strings.ContainsAny(word, "ßäöü"):
		return "de", 0.7, true
	case strings.ContainsAny(word, "èêâîôûëïœç"):
		return "fr", 0.7, true
	case strings.ContainsAny(word, "àìòù"):
		return "it", 0.6, true
	case strings.ContainsAny(word, "áéíóú"):
		return "es", 0.6, true
	}
	return "", 0, false
}
