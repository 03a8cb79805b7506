package splitter

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/MimeLyc/longdoc-translator/internal/tokenizer"
)

// charsPerToken is the conservative estimate used for the raw character
// fallback when not even a single sentence fits the budget.
const charsPerToken = 3

var (
	paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)
	headingRe        = regexp.MustCompile(`^#{1,6}\s+`)
)

// Chunk is a bounded slice of source text together with its token count.
type Chunk struct {
	Text       string `json:"text"`
	Index      int    `json:"index"`
	TokenCount int    `json:"token_count"`
}

// Splitter turns raw text into an ordered chunk sequence honoring a token
// budget. Splitting prefers semantic boundaries: blank-delimited paragraphs
// with markdown headings kept attached to their section, then sentences,
// then raw character slices as the last resort. Consecutive chunks share the
// trailing overlap sentences of the previous chunk for translation
// continuity.
type Splitter struct {
	tok              tokenizer.Tokenizer
	maxTokens        int
	overlapSentences int
}

func New(tok tokenizer.Tokenizer, maxTokens, overlapSentences int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = 8000
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	return &Splitter{
		tok:              tok,
		maxTokens:        maxTokens,
		overlapSentences: overlapSentences,
	}
}

// NeedsSplit reports whether text exceeds the token budget.
func (s *Splitter) NeedsSplit(text string) bool {
	return s.tok.Count(text) > s.maxTokens
}

// Split returns the ordered chunk texts for text. The whole input is
// returned as a single chunk when it fits the budget. Every returned chunk
// satisfies the budget except when a single unbroken character run cannot
// be split further.
func (s *Splitter) Split(text string) []string {
	if !s.NeedsSplit(text) {
		return []string{text}
	}

	paragraphs := s.splitParagraphs(text)

	chunks := make([]string, 0)
	current := make([]string, 0)
	currentTokens := 0

	closeCurrent := func() {
		chunks = append(chunks, strings.Join(current, "\n\n"))
		overlap := s.overlapOf(current)
		current = append([]string(nil), overlap...)
		currentTokens = 0
		for _, p := range current {
			currentTokens += s.tok.Count(p)
		}
	}

	for _, para := range paragraphs {
		paraTokens := s.tok.Count(para)

		// A single paragraph over budget is split recursively; its last
		// piece stays open so following paragraphs can join it.
		if paraTokens > s.maxTokens {
			if len(current) > 0 {
				closeCurrent()
			}
			sub := s.splitLargeParagraph(para)
			chunks = append(chunks, sub[:len(sub)-1]...)
			last := sub[len(sub)-1]
			current = []string{last}
			currentTokens = s.tok.Count(last)
			continue
		}

		if currentTokens+paraTokens > s.maxTokens && len(current) > 0 {
			closeCurrent()
		}

		current = append(current, para)
		currentTokens += paraTokens
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}

	return chunks
}

// Chunks is Split plus per-chunk token counts.
func (s *Splitter) Chunks(text string) []Chunk {
	texts := s.Split(text)
	ret := make([]Chunk, 0, len(texts))
	for i, t := range texts {
		ret = append(ret, Chunk{Text: t, Index: i, TokenCount: s.tok.Count(t)})
	}
	return ret
}

// splitParagraphs segments text on blank lines. A markdown heading opens a
// section that absorbs following paragraphs until the next heading.
func (s *Splitter) splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	parts := paragraphBreakRe.Split(text, -1)

	paragraphs := make([]string, 0, len(parts))
	section := make([]string, 0)

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if headingRe.MatchString(part) {
			if len(section) > 0 {
				paragraphs = append(paragraphs, strings.Join(section, "\n\n"))
				section = section[:0]
			}
			section = append(section, part)
			continue
		}
		if len(section) > 0 {
			section = append(section, part)
		} else {
			paragraphs = append(paragraphs, part)
		}
	}
	if len(section) > 0 {
		paragraphs = append(paragraphs, strings.Join(section, "\n\n"))
	}

	return paragraphs
}

// splitLargeParagraph breaks an over-budget paragraph by sentences, falling
// back to character slicing when a single sentence exceeds the budget.
func (s *Splitter) splitLargeParagraph(paragraph string) []string {
	sentences := splitSentences(paragraph)
	if len(sentences) <= 1 {
		return s.splitByChars(paragraph)
	}

	chunks := make([]string, 0)
	current := make([]string, 0)
	currentTokens := 0

	for _, sentence := range sentences {
		sentTokens := s.tok.Count(sentence)

		if sentTokens > s.maxTokens {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
				current = current[:0]
				currentTokens = 0
			}
			charChunks := s.splitByChars(sentence)
			chunks = append(chunks, charChunks[:len(charChunks)-1]...)
			last := charChunks[len(charChunks)-1]
			current = append(current, last)
			currentTokens = s.tok.Count(last)
			continue
		}

		if currentTokens+sentTokens > s.maxTokens && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			currentTokens = 0
		}

		current = append(current, sentence)
		currentTokens += sentTokens
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// splitByChars slices text by raw character count, preferring a whitespace
// boundary in the second half of the window.
func (s *Splitter) splitByChars(text string) []string {
	maxChars := s.maxTokens * charsPerToken

	chunks := make([]string, 0)
	runes := []rune(strings.TrimSpace(text))
	for len(runes) > 0 {
		if len(runes) <= maxChars {
			chunks = append(chunks, string(runes))
			break
		}

		splitPoint := maxChars
		if idx := lastSpaceBefore(runes, splitPoint); idx > splitPoint/2 {
			splitPoint = idx
		}

		chunks = append(chunks, strings.TrimSpace(string(runes[:splitPoint])))
		runes = []rune(strings.TrimSpace(string(runes[splitPoint:])))
	}

	return chunks
}

func lastSpaceBefore(runes []rune, limit int) int {
	for i := limit - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

// overlapOf returns the trailing overlap sentences of a closed chunk as a
// seed paragraph for the next one.
func (s *Splitter) overlapOf(paragraphs []string) []string {
	if len(paragraphs) == 0 || s.overlapSentences <= 0 {
		return nil
	}

	lastPara := paragraphs[len(paragraphs)-1]
	sentences := splitSentences(lastPara)
	if len(sentences) <= s.overlapSentences {
		return []string{lastPara}
	}

	return []string{strings.Join(sentences[len(sentences)-s.overlapSentences:], " ")}
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	case '。', '！', '？':
		return true
	}
	return false
}

func isCJKEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

// splitSentences cuts text after sentence-ending punctuation. Latin enders
// require trailing whitespace so decimals and abbreviations survive; the
// CJK equivalents end a sentence on their own.
func splitSentences(text string) []string {
	runes := []rune(text)
	sentences := make([]string, 0)
	var b strings.Builder

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	for i, r := range runes {
		b.WriteRune(r)
		if !isSentenceEnd(r) {
			continue
		}
		if isCJKEnd(r) || i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
			flush()
		}
	}
	flush()

	return sentences
}
