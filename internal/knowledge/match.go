package knowledge

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minFAQPrefixLen = 6

var (
	digitRun           = regexp.MustCompile(`\d+`)
	standaloneDigitRun = regexp.MustCompile(`\b\d+\b`)
	feeWord            = regexp.MustCompile(`\bfees?\b`)
)

// Activity describes one term event the bot can report.
type Activity struct {
	Key      string
	Label    string
	Keywords []string
}

// Activities is the fixed keyword table, checked in order.
var Activities = []Activity{
	{Key: "opening_date", Label: "Opening date", Keywords: []string{"opening date", "opening day", "reopen", "reopening", "school open", "term start", "term begin"}},
	{Key: "closing_date", Label: "Closing date", Keywords: []string{"closing date", "closing day", "closing", "school close", "term end"}},
	{Key: "parents_meeting", Label: "Parents' meeting", Keywords: []string{"parents meeting", "parents' meeting", "parent meeting", "parents day", "pta"}},
	{Key: "school_trip", Label: "School trip", Keywords: []string{"school trip", "trip", "excursion"}},
	{Key: "exam_start", Label: "Exams start", Keywords: []string{"exam"}},
}

// Tokenize lowercases s, drops punctuation and splits on whitespace.
func Tokenize(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Fields(cleaned)
}

// MatchTransport returns the first fare whose route and one of whose stops
// both appear in msg, along with the matching stop.
func (k *Knowledge) MatchTransport(msg string) (Fare, string, bool) {
	lower := strings.ToLower(msg)
	for _, fare := range k.Transport {
		route := strings.ToLower(strings.TrimSpace(fare.Route))
		if route == "" || !strings.Contains(lower, route) {
			continue
		}
		for _, stop := range fare.Stops {
			s := strings.ToLower(strings.TrimSpace(stop))
			if s != "" && strings.Contains(lower, s) {
				return fare, stop, true
			}
		}
	}
	return Fare{}, "", false
}

// MatchFAQ returns the first FAQ whose question matches msg by token overlap
// or by a literal leading fragment.
func (k *Knowledge) MatchFAQ(msg string) (FAQ, bool) {
	lower := strings.ToLower(msg)
	msgTokens := make(map[string]struct{})
	for _, tok := range Tokenize(msg) {
		msgTokens[tok] = struct{}{}
	}

	for _, faq := range k.FAQs {
		qTokens := uniqueTokens(faq.Question)
		if len(qTokens) == 0 {
			continue
		}

		overlap := 0
		for _, tok := range qTokens {
			if _, ok := msgTokens[tok]; ok {
				overlap++
			}
		}
		if overlap >= min(2, len(qTokens)) {
			return faq, true
		}

		if prefix := questionPrefix(faq.Question); prefix != "" && strings.Contains(lower, prefix) {
			return faq, true
		}
	}
	return FAQ{}, false
}

func uniqueTokens(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(s) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// questionPrefix is the leading third of the lowercased question, at least
// minFAQPrefixLen runes, or the whole question when shorter.
func questionPrefix(question string) string {
	q := strings.ToLower(strings.TrimSpace(question))
	n := utf8.RuneCountInString(q)
	size := max(n/3, minFAQPrefixLen)
	if size >= n {
		return q
	}
	return string([]rune(q)[:size])
}

// FeeMatch is the result of a fee lookup.
type FeeMatch struct {
	// Fee is set when a single class was identified.
	Fee *Fee
	// Summary is set when the message asked about fees in general.
	Summary bool
}

// LookupFee finds the class msg refers to, either by name or by a number
// that appears in the class name. When several class names match, the
// longest wins, so "grade 10" is not read as "Grade 1". Failing that, a bare
// mention of fees asks for the whole table.
func (k *Knowledge) LookupFee(msg string) (FeeMatch, bool) {
	lower := strings.ToLower(msg)
	compact := stripSpaces(lower)

	var best *Fee
	bestLen := 0
	for i := range k.Fees {
		class := strings.ToLower(strings.TrimSpace(k.Fees[i].Class))
		if class == "" {
			continue
		}
		if !containsName(lower, class) && !containsName(compact, stripSpaces(class)) {
			continue
		}
		if n := len(stripSpaces(class)); n > bestLen {
			best, bestLen = &k.Fees[i], n
		}
	}
	if best != nil {
		return FeeMatch{Fee: best}, true
	}

	if numbers := standaloneDigitRun.FindAllString(lower, -1); len(numbers) > 0 {
		for i := range k.Fees {
			for _, classNumber := range digitRun.FindAllString(k.Fees[i].Class, -1) {
				for _, n := range numbers {
					if n == classNumber {
						return FeeMatch{Fee: &k.Fees[i]}, true
					}
				}
			}
		}
	}

	if feeWord.MatchString(lower) {
		return FeeMatch{Summary: true}, true
	}
	return FeeMatch{}, false
}

// FeeSummary renders the table as "<class>: <amount>" lines in authored order.
func (k *Knowledge) FeeSummary() string {
	lines := make([]string, 0, len(k.Fees))
	for _, fee := range k.Fees {
		lines = append(lines, fee.Class+": "+fee.Amount)
	}
	return strings.Join(lines, "\n")
}

// MatchActivity returns the first activity with a keyword in msg and its
// configured date. Keywords match whole words; the last word may carry a
// plural "s". ok is false when no keyword matched; date is empty when the
// activity has no date set.
func (k *Knowledge) MatchActivity(msg string) (activity Activity, date string, ok bool) {
	words := Tokenize(msg)
	for _, a := range Activities {
		for _, kw := range a.Keywords {
			if containsPhrase(words, Tokenize(kw)) {
				return a, strings.TrimSpace(k.Activities[a.Key]), true
			}
		}
	}
	return Activity{}, "", false
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	last := len(phrase) - 1
	for i := 0; i+last < len(words); i++ {
		matched := true
		for j, p := range phrase {
			w := words[i+j]
			if w == p || (j == last && w == p+"s") {
				continue
			}
			matched = false
			break
		}
		if matched {
			return true
		}
	}
	return false
}

// containsName reports whether name occurs in s without running into an
// adjacent digit, so "grade 1" is not found inside "grade 10".
func containsName(s, name string) bool {
	for off := 0; off <= len(s)-len(name); {
		i := strings.Index(s[off:], name)
		if i < 0 {
			return false
		}
		start, end := off+i, off+i+len(name)
		before := start > 0 && isDigit(s[start-1]) && isDigit(name[0])
		after := end < len(s) && isDigit(s[end]) && isDigit(name[len(name)-1])
		if !before && !after {
			return true
		}
		off = start + 1
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
