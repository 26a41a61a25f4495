package nlp

import (
	"strings"
	"unicode"
)

// Tokenize splits text into word tokens and single punctuation tokens. Words keep their
// original case; apostrophes and hyphens inside a word stay attached.
func Tokenize(text string) []string {
	var (
		tokens []string
		word   strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			word.WriteRune(r)
		case (r == '\'' || r == '-') && word.Len() > 0 && i+1 < len(runes) && isWordRune(runes[i+1]):
			word.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens = append(tokens, string(r))
		}
	}
	flush()
	return tokens
}

// Words tokenizes text and drops punctuation tokens.
func Words(text string) []string {
	all := Tokenize(text)
	words := all[:0]
	for _, tok := range all {
		if IsWord(tok) {
			words = append(words, tok)
		}
	}
	return words
}

// IsWord reports whether token starts with a letter or digit.
func IsWord(token string) bool {
	for _, r := range token {
		return isWordRune(r)
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// SplitSentences splits text after '.', '!' or '?' runs followed by whitespace. Text
// without a terminator is a single sentence.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isTerminator(runes[i+1]) {
			i++
		}
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
