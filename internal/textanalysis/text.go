// Package textanalysis holds the keyword heuristics used on feedback comments:
// HTML cleanup, sentiment cues and issue phrase extraction.
package textanalysis

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
)

var whitespace = regexp.MustCompile(`\s+`)

// StripHTML returns the visible text of an HTML fragment. Plain text passes
// through with whitespace collapsed.
func StripHTML(input string) string {
	if !strings.ContainsAny(input, "<&") {
		return strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(input))
	if err != nil {
		return strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
	}
	doc.Find("script, style").Remove()

	return strings.TrimSpace(whitespace.ReplaceAllString(doc.Text(), " "))
}

var positiveWords = map[string]bool{
	"helpful": true, "great": true, "thanks": true, "thank": true, "clear": true,
	"perfect": true, "useful": true, "solved": true, "works": true, "worked": true,
	"excellent": true, "easy": true,
}

var negativeWords = map[string]bool{
	"wrong": true, "incorrect": true, "outdated": true, "missing": true, "unclear": true,
	"confusing": true, "broken": true, "useless": true, "incomplete": true, "bad": true,
	"error": true, "fails": true, "failed": true, "old": true, "misleading": true,
}

// IssueKeywords anchor issue phrases. Each is a single token.
var IssueKeywords = map[string]bool{
	"wrong": true, "incorrect": true, "outdated": true, "missing": true, "unclear": true,
	"confusing": true, "broken": true, "incomplete": true, "misleading": true, "old": true,
	"error": true, "fails": true, "slow": true,
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true, "were": true,
	"and": true, "or": true, "but": true, "to": true, "of": true, "in": true, "on": true,
	"for": true, "it": true, "this": true, "that": true, "be": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "so": true, "too": true, "very": true, "here": true,
	"there": true, "now": true, "again": true,
}

// Cues counts sentiment keywords in text.
type Cues struct {
	Positive int
	Negative int
}

func SentimentCues(text string) Cues {
	var c Cues
	for _, w := range Words(text) {
		if positiveWords[w] {
			c.Positive++
		}
		if negativeWords[w] {
			c.Negative++
		}
	}
	return c
}

// Words tokenises text into lowercase word tokens, dropping punctuation.
func Words(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return fallbackWords(text)
	}

	var words []string
	for _, tok := range doc.Tokens() {
		w := strings.ToLower(tok.Text)
		if isWord(w) {
			words = append(words, w)
		}
	}
	return words
}

// IssuePhrases finds issue keywords and pairs each with the following content
// word when there is one: "missing steps", "outdated", "wrong link".
// Phrases are returned in order of first appearance, without duplicates.
func IssuePhrases(text string) []string {
	words := Words(StripHTML(text))

	seen := make(map[string]bool)
	var phrases []string
	for i, w := range words {
		if !IssueKeywords[w] {
			continue
		}
		phrase := w
		if i+1 < len(words) {
			next := words[i+1]
			if !stopwords[next] && !IssueKeywords[next] {
				phrase = w + " " + next
			}
		}
		if !seen[phrase] {
			seen[phrase] = true
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}

func isWord(w string) bool {
	for _, r := range w {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func fallbackWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
