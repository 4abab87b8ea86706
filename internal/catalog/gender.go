package catalog

import (
	"strings"

	"github.com/jwoolee/stylereel/pkg/models"
)

// Gender cue tokens seen in Korean e-commerce listing titles. Korean
// tokens match as substrings; ASCII tokens only match on word boundaries
// so "women" does not fire inside "showmen".
var (
	menTokens    = []string{"남성", "남자", "맨즈", "men", "mens", "male", "boy", "for men"}
	womenTokens  = []string{"여성", "여자", "우먼", "우먼즈", "우먼스", "women", "womens", "female", "girl", "lady", "for women"}
	unisexTokens = []string{"공용", "남녀", "유니섹스", "unisex"}
)

// InferGender classifies a listing from its title and brand text. Unisex
// cues win over gendered ones, and conflicting gendered cues also resolve
// to unisex. No cue at all means unisex, the safe default for styling.
func InferGender(text string) models.Gender {
	lower := strings.ToLower(text)

	if containsAnyToken(lower, unisexTokens) {
		return models.GenderUnisex
	}

	men := containsAnyToken(lower, menTokens)
	women := containsAnyToken(lower, womenTokens)
	switch {
	case men && !women:
		return models.GenderMen
	case women && !men:
		return models.GenderWomen
	default:
		return models.GenderUnisex
	}
}

// GenderCompatible reports whether an item may be shown for a target
// audience. Unisex items fit everyone and every target accepts unisex.
func GenderCompatible(target, item models.Gender) bool {
	if target == models.GenderUnisex || item == models.GenderUnisex {
		return true
	}
	return target == item
}

// HasOppositeGenderCue reports whether listing text carries only the
// opposite audience's cue. Used to drop nominally unisex items that are
// clearly cut for the other audience.
func HasOppositeGenderCue(target models.Gender, text string) bool {
	lower := strings.ToLower(text)
	men := containsAnyToken(lower, menTokens)
	women := containsAnyToken(lower, womenTokens)
	switch target {
	case models.GenderMen:
		return women && !men
	case models.GenderWomen:
		return men && !women
	default:
		return false
	}
}

// ContainsStyleToken matches a cue token list against listing text, with
// word boundaries for ASCII tokens.
func ContainsStyleToken(text string, tokens []string) bool {
	return containsAnyToken(strings.ToLower(text), tokens)
}

func containsAnyToken(lower string, tokens []string) bool {
	for _, token := range tokens {
		if isASCII(token) {
			if containsWord(lower, token) {
				return true
			}
			continue
		}
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// containsWord finds token in s delimited by non-alphanumeric runes or
// string edges.
func containsWord(s, token string) bool {
	for start := 0; ; {
		idx := strings.Index(s[start:], token)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(token)
		leftOK := idx == 0 || !isWordByte(s[idx-1])
		rightOK := end == len(s) || !isWordByte(s[end])
		if leftOK && rightOK {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
