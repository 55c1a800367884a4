package text_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/book-expert/tts-stream/internal/text"
)

type normalizeTestCase struct {
	name     string
	input    string
	expected string
}

func runNormalizeTests(t *testing.T, options text.Options, tests []normalizeTestCase) {
	t.Helper()

	normalizer := text.NewNormalizer(options)

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, normalizer.Normalize(testCase.input))
		})
	}
}

func TestNormalizer_StripsMarkup(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, text.Options{}, []normalizeTestCase{
		{name: "empty", input: "", expected: ""},
		{name: "blank", input: " \n\t ", expected: ""},
		{name: "plain", input: "Hello world", expected: "Hello world."},
		{name: "strong", input: "This is **very** important.", expected: "This is very important."},
		{name: "emphasis", input: "An *emphasized* and _quiet_ word.", expected: "An emphasized and quiet word."},
		{name: "snake case survives", input: "Call snake_case_name now.", expected: "Call snake_case_name now."},
		{name: "strike", input: "Not ~~this~~ that.", expected: "Not this that."},
		{name: "heading", input: "# Chapter One\nIt began.", expected: "Chapter One. It began."},
		{name: "closed heading", input: "## Part ##\nText", expected: "Part. Text."},
		{name: "link", input: "Read [the guide](https://example.com/guide) first.", expected: "Read the guide first."},
		{name: "image", input: "![a cat](cat.png) sat.", expected: "a cat sat."},
		{name: "inline code", input: "Run `make test` now.", expected: "Run make test now."},
		{name: "code fence", input: "Before\n```go\nfmt.Println()\n```\nAfter", expected: "Before fmt.Println()\n\nAfter."},
		{name: "bullets", input: "- one\n- two\n* three", expected: "one two three."},
		{name: "numbered", input: "1. first\n2) second", expected: "first second."},
		{name: "quote", input: "> quoted line", expected: "quoted line."},
		{name: "rule", input: "Above\n\n---\n\nBelow.", expected: "Above\n\nBelow."},
		{name: "paragraphs", input: "First  line\nwraps.\n\n\nSecond.", expected: "First line wraps.\n\nSecond."},
	})
}

func TestNormalizer_Typography(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, text.Options{}, []normalizeTestCase{
		{name: "smart quotes", input: "“Hi,” she said. ‘Yes’", expected: `"Hi," she said. 'Yes'.`},
		{name: "dashes", input: "pages 3–5 — roughly", expected: "pages 3-5 - roughly."},
		{name: "ellipsis", input: "Wait…", expected: "Wait..."},
		{name: "repeated marks", input: "Really?!?? Yes!!!", expected: "Really?!? Yes!"},
		{name: "trailing comma", input: "and so,", expected: "and so."},
	})
}

func TestNormalizer_Expansions(t *testing.T) {
	t.Parallel()

	runNormalizeTests(t, text.DefaultOptions(), []normalizeTestCase{
		{name: "abbreviations", input: "Dr. Smith met Mrs. Jones.", expected: "Doctor Smith met Misses Jones."},
		{name: "numbers", input: "I have 42 apples.", expected: "I have forty two apples."},
		{name: "url kept", input: "See https://example.com/v2/page_1 for 3 items", expected: "See https://example.com/v2/page_1 for three items."},
		{name: "email kept", input: "Mail dr_who42@example.org today", expected: "Mail dr_who42@example.org today."},
		{name: "large number kept", input: "Population 1234567", expected: "Population 1234567."},
	})
}

func TestIntegerToWords(t *testing.T) {
	t.Parallel()

	tests := map[int]string{
		0:       "zero",
		7:       "seven",
		13:      "thirteen",
		20:      "twenty",
		42:      "forty two",
		100:     "one hundred",
		115:     "one hundred fifteen",
		1000:    "one thousand",
		1001:    "one thousand one",
		21500:   "twenty one thousand five hundred",
		999999:  "nine hundred ninety nine thousand nine hundred ninety nine",
		-5:      "-5",
		1000000: "1000000",
	}

	for number, expected := range tests {
		assert.Equal(t, expected, text.IntegerToWords(number), "number %d", number)
	}
}
