package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/hyperjump/docqa/internal/errs"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer measures and cuts text in model tokens, counting [CLS] and [SEP].
type Tokenizer interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// maxWordChars is the longest word WordPiece will split; longer words become [UNK].
const maxWordChars = 100

// WordPieceTokenizer is the uncased BERT tokenizer used by all-MiniLM-L6-v2: basic
// cleanup and punctuation splitting, then greedy longest-match WordPiece over vocab.txt.
type WordPieceTokenizer struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
	pad   int64
}

// LoadWordPieceTokenizer reads a vocab.txt with one token per line; the line number is the id.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	const op = "embedding.LoadWordPieceTokenizer"
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("open vocab: %w", err))
	}
	defer f.Close()

	vocab := make(map[string]int64, 32000)
	sc := bufio.NewScanner(f)
	var id int64
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r")
		if _, dup := vocab[tok]; !dup {
			vocab[tok] = id
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("read vocab: %w", err))
	}
	return NewWordPieceTokenizer(vocab)
}

// NewWordPieceTokenizer builds a tokenizer over vocab, which must hold [CLS], [SEP], [UNK], and [PAD].
func NewWordPieceTokenizer(vocab map[string]int64) (*WordPieceTokenizer, error) {
	t := &WordPieceTokenizer{vocab: vocab}
	for _, special := range []struct {
		name string
		dst  *int64
	}{{"[CLS]", &t.cls}, {"[SEP]", &t.sep}, {"[UNK]", &t.unk}, {"[PAD]", &t.pad}} {
		id, ok := vocab[special.name]
		if !ok {
			return nil, errs.Newf(errs.KindEmbedding, "embedding.NewWordPieceTokenizer", "vocab has no %s token", special.name)
		}
		*special.dst = id
	}
	return t, nil
}

// Encode returns model inputs padded to maxTokens. Pieces beyond maxTokens-2 are dropped;
// callers apply the truncation policy first.
func (t *WordPieceTokenizer) Encode(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 2
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = t.pad
	}

	inputIDs[0] = t.cls
	attentionMask[0] = 1
	pos := 1
	for _, id := range t.ids(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = id
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = t.sep
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// Count returns the number of WordPiece tokens in text plus [CLS] and [SEP].
func (t *WordPieceTokenizer) Count(text string) int {
	return len(t.ids(text)) + 2
}

// Truncate keeps the leading whitespace-separated words whose pieces fit in maxTokens.
func (t *WordPieceTokenizer) Truncate(text string, maxTokens int) string {
	budget := maxTokens - 2
	kept := make([]string, 0, 64)
	for _, word := range SplitWords(text) {
		n := len(t.ids(word))
		if n > budget {
			break
		}
		budget -= n
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

// Tokens returns the WordPiece strings for text, without [CLS] and [SEP].
func (t *WordPieceTokenizer) Tokens(text string) []string {
	var out []string
	for _, word := range basicTokenize(text) {
		out = append(out, t.wordPieces(word)...)
	}
	return out
}

func (t *WordPieceTokenizer) ids(text string) []int64 {
	pieces := t.Tokens(text)
	ids := make([]int64, len(pieces))
	for i, p := range pieces {
		if id, ok := t.vocab[p]; ok {
			ids[i] = id
		} else {
			ids[i] = t.unk
		}
	}
	return ids
}

// wordPieces splits one basic token by greedy longest match; an unsplittable word is [UNK].
func (t *WordPieceTokenizer) wordPieces(word string) []string {
	chars := []rune(word)
	if len(chars) > maxWordChars {
		return []string{"[UNK]"}
	}
	var pieces []string
	for start := 0; start < len(chars); {
		end := len(chars)
		match := ""
		for ; end > start; end-- {
			sub := string(chars[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				match = sub
				break
			}
		}
		if match == "" {
			return []string{"[UNK]"}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// basicTokenize lowercases, strips accents and control characters, and splits on
// whitespace, punctuation, and CJK ideographs.
func basicTokenize(text string) []string {
	if s, _, err := transform.String(stripAccents, strings.ToLower(text)); err == nil {
		text = s
	}
	var b strings.Builder
	for _, r := range text {
		switch {
		case r == 0 || r == unicode.ReplacementChar:
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
		case isPunct(r) || unicode.Is(unicode.Han, r):
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

// isPunct treats all non-alphanumeric ASCII as punctuation, as BERT does.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// SimpleTokenizer approximates token counts by words, for remote models whose vocabulary
// is not available locally.
type SimpleTokenizer struct{}

// Count returns the number of words plus [CLS] and [SEP].
func (t *SimpleTokenizer) Count(text string) int {
	return len(SplitWords(text)) + 2
}

// Truncate keeps the first maxTokens-2 words.
func (t *SimpleTokenizer) Truncate(text string, maxTokens int) string {
	keep := maxTokens - 2
	if keep < 0 {
		keep = 0
	}
	return strings.Join(TruncateWords(SplitWords(text), keep), " ")
}

// fitTokens applies the truncation policy. With truncate false, text longer than maxTokens
// is an embedding error; with truncate true it is cut to fit.
func fitTokens(tok Tokenizer, text string, maxTokens int, truncate bool) (string, error) {
	if maxTokens <= 0 {
		return text, nil
	}
	n := tok.Count(text)
	if n <= maxTokens {
		return text, nil
	}
	if !truncate {
		return "", errs.Newf(errs.KindEmbedding, "embedding.fitTokens",
			"input is %d tokens, model limit is %d (set embedding.truncate to cut long input)", n, maxTokens)
	}
	return tok.Truncate(text, maxTokens), nil
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// HashString returns a deterministic non-negative hash, used for feature hashing.
func HashString(s string) int {
	var h uint32
	for _, c := range s {
		h = 31*h + uint32(c)
	}
	return int(h & 0x7fffffff)
}

// TruncateWords returns up to maxWords words from the slice.
func TruncateWords(words []string, maxWords int) []string {
	if len(words) <= maxWords {
		return words
	}
	return words[:maxWords]
}
