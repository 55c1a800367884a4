// Package text prepares user text for synthesis.
//
// Input may embed lightweight markup (markdown emphasis, headings, links,
// code spans and list bullets). The Normalizer strips the markup, expands
// abbreviations and small integers into words, and normalizes whitespace,
// quotes and dashes so the service receives plain prose.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	numberBaseTen      = 10
	numberBaseTwenty   = 20
	numberBaseHundred  = 100
	numberBaseThousand = 1000
	// MaxNumberForWords is the largest integer spelled out; larger ones are kept as digits.
	MaxNumberForWords = 999999
)

// Markup patterns.
const (
	codeFencePattern  = "(?s)```[^\\n]*\\n(.*?)```"
	inlineCodePattern = "`([^`]*)`"
	imagePattern      = `!\[([^\]]*)\]\([^)]*\)`
	linkPattern       = `\[([^\]]+)\]\([^)]*\)`
	headingPattern    = `(?m)^[ \t]{0,3}#{1,6}[ \t]+(.*?)[ \t]*#*[ \t]*$`
	bulletPattern     = `(?m)^[ \t]*(?:[-*+]|\d+[.)])[ \t]+`
	quotePattern      = `(?m)^[ \t]*>[ \t]?`
	strongPattern     = `(\*\*|__)(.+?)(\*\*|__)`
	emphasisPattern   = `(^|[^\w*])[*_]([^*_\n]+)[*_]`
	strikePattern     = `~~(.+?)~~`
	rulePattern       = `(?m)^[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*$`
)

// Token patterns.
const (
	urlPattern          = `https?://\S+`
	emailPattern        = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	numberPattern       = `\b\d+\b`
	paragraphPattern    = `\n\s*\n`
	whitespacePattern   = `[ \t\r\f\v]+`
	repeatedPunctuation = `!{2,}|\?{2,}|,{2,}|;{2,}|:{2,}`
	placeholderMarker   = "\x00"
	paragraphSeparator  = "\n\n"
)

// Options selects the optional normalization passes.
type Options struct {
	// ExpandNumbers spells out integers up to MaxNumberForWords.
	ExpandNumbers bool
	// ExpandAbbreviations replaces honorifics and company suffixes.
	ExpandAbbreviations bool
}

// DefaultOptions enables every pass.
func DefaultOptions() Options {
	return Options{ExpandNumbers: true, ExpandAbbreviations: true}
}

// Normalizer turns marked-up text into plain prose. It is safe for
// concurrent use.
type Normalizer struct {
	options Options

	codeFence  *regexp.Regexp
	inlineCode *regexp.Regexp
	image      *regexp.Regexp
	link       *regexp.Regexp
	heading    *regexp.Regexp
	bullet     *regexp.Regexp
	quote      *regexp.Regexp
	strong     *regexp.Regexp
	emphasis   *regexp.Regexp
	strike     *regexp.Regexp
	rule       *regexp.Regexp

	url         *regexp.Regexp
	email       *regexp.Regexp
	number      *regexp.Regexp
	paragraph   *regexp.Regexp
	whitespace  *regexp.Regexp
	punctuation *regexp.Regexp

	abbreviations *strings.Replacer
	typography    *strings.Replacer
}

// NewNormalizer compiles the patterns once for reuse.
func NewNormalizer(options Options) *Normalizer {
	return &Normalizer{
		options:    options,
		codeFence:  regexp.MustCompile(codeFencePattern),
		inlineCode: regexp.MustCompile(inlineCodePattern),
		image:      regexp.MustCompile(imagePattern),
		link:       regexp.MustCompile(linkPattern),
		heading:    regexp.MustCompile(headingPattern),
		bullet:     regexp.MustCompile(bulletPattern),
		quote:      regexp.MustCompile(quotePattern),
		strong:     regexp.MustCompile(strongPattern),
		emphasis:   regexp.MustCompile(emphasisPattern),
		strike:     regexp.MustCompile(strikePattern),
		rule:       regexp.MustCompile(rulePattern),

		url:         regexp.MustCompile(urlPattern),
		email:       regexp.MustCompile(emailPattern),
		number:      regexp.MustCompile(numberPattern),
		paragraph:   regexp.MustCompile(paragraphPattern),
		whitespace:  regexp.MustCompile(whitespacePattern),
		punctuation: regexp.MustCompile(repeatedPunctuation),

		abbreviations: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Ltd.", "Limited",
			"Corp.", "Corporation",
			"Inc.", "Incorporated",
		),
		typography: strings.NewReplacer(
			"—", " - ",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
			" ", " ",
		),
	}
}

// Normalize returns the speakable form of input. Paragraph breaks survive as
// a blank line; every other run of whitespace collapses to one space.
func (n *Normalizer) Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	text := strings.ReplaceAll(input, "\r\n", "\n")

	// Links and addresses are protected before markup stripping touches
	// their underscores and asterisks.
	text = n.stripLinks(text)
	text, tokens := n.protect(text)

	text = n.stripMarkup(text)
	text = n.typography.Replace(text)

	if n.options.ExpandAbbreviations {
		text = n.abbreviations.Replace(text)
	}

	if n.options.ExpandNumbers {
		text = n.expandNumbers(text)
	}

	text = n.punctuation.ReplaceAllStringFunc(text, func(run string) string { return run[:1] })
	text = n.collapseWhitespace(text)
	text = restore(text, tokens)

	return ensureSentenceEnding(text)
}

func (n *Normalizer) stripLinks(text string) string {
	text = n.image.ReplaceAllString(text, "$1")

	return n.link.ReplaceAllString(text, "$1")
}

func (n *Normalizer) stripMarkup(text string) string {
	text = n.codeFence.ReplaceAllString(text, "$1")
	text = n.inlineCode.ReplaceAllString(text, "$1")
	text = n.rule.ReplaceAllString(text, "")
	text = n.heading.ReplaceAllString(text, "$1.")
	text = n.quote.ReplaceAllString(text, "")
	text = n.bullet.ReplaceAllString(text, "")
	text = n.strike.ReplaceAllString(text, "$1")
	text = n.strong.ReplaceAllString(text, "$2")

	return n.emphasis.ReplaceAllString(text, "$1$2")
}

// protect swaps URLs and email addresses for placeholders that no later
// pass rewrites.
func (n *Normalizer) protect(text string) (string, []string) {
	var tokens []string

	replace := func(match string) string {
		tokens = append(tokens, match)

		return placeholder(len(tokens) - 1)
	}

	text = n.url.ReplaceAllStringFunc(text, replace)
	text = n.email.ReplaceAllStringFunc(text, replace)

	return text, tokens
}

// placeholder encodes index in letters so the number pass leaves it alone.
func placeholder(index int) string {
	var letters []byte

	for {
		letters = append(letters, byte('a'+index%26))
		index /= 26

		if index == 0 {
			break
		}
	}

	return placeholderMarker + "token" + string(letters) + placeholderMarker
}

func restore(text string, tokens []string) string {
	for index, token := range tokens {
		text = strings.Replace(text, placeholder(index), token, 1)
	}

	return text
}

func (n *Normalizer) expandNumbers(text string) string {
	return n.number.ReplaceAllStringFunc(text, func(digits string) string {
		number, err := strconv.Atoi(digits)
		if err != nil {
			return digits
		}

		return IntegerToWords(number)
	})
}

func (n *Normalizer) collapseWhitespace(text string) string {
	paragraphs := n.paragraph.Split(text, -1)
	kept := paragraphs[:0]

	for _, paragraph := range paragraphs {
		paragraph = strings.ReplaceAll(paragraph, "\n", " ")
		paragraph = strings.TrimSpace(n.whitespace.ReplaceAllString(paragraph, " "))

		if paragraph != "" {
			kept = append(kept, paragraph)
		}
	}

	return strings.Join(kept, paragraphSeparator)
}

func ensureSentenceEnding(text string) string {
	if text == "" {
		return ""
	}

	last, _ := utf8.DecodeLastRuneInString(text)

	switch {
	case last == '.', last == '!', last == '?':
		return text
	case unicode.IsPunct(last) && last != '"' && last != '\'' && last != ')':
		return text[:len(text)-utf8.RuneLen(last)] + "."
	default:
		return text + "."
	}
}

var (
	ones = []string{
		"", "one", "two", "three", "four", "five",
		"six", "seven", "eight", "nine",
	}
	teens = []string{
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	tens = []string{
		"", "", "twenty", "thirty", "forty", "fifty",
		"sixty", "seventy", "eighty", "ninety",
	}
)

// IntegerToWords spells number in English. Numbers outside
// [0, MaxNumberForWords] are returned as digits.
func IntegerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	var parts []string

	if thousands := number / numberBaseThousand; thousands > 0 {
		parts = append(parts, underThousand(thousands)+" thousand")
	}

	if remainder := number % numberBaseThousand; remainder > 0 {
		parts = append(parts, underThousand(remainder))
	}

	return strings.Join(parts, " ")
}

func underThousand(number int) string {
	hundreds := number / numberBaseHundred
	remainder := number % numberBaseHundred

	switch {
	case hundreds == 0:
		return underHundred(remainder)
	case remainder == 0:
		return ones[hundreds] + " hundred"
	default:
		return ones[hundreds] + " hundred " + underHundred(remainder)
	}
}

func underHundred(number int) string {
	switch {
	case number < numberBaseTen:
		return ones[number]
	case number < numberBaseTwenty:
		return teens[number-numberBaseTen]
	case number%numberBaseTen == 0:
		return tens[number/numberBaseTen]
	default:
		return tens[number/numberBaseTen] + " " + ones[number%numberBaseTen]
	}
}
