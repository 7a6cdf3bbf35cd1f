package pipeline

import (
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/oho/hikmara/internal/logger"
)

// TokenizerWords selects UAX #29 word segmentation instead of a BPE encoding.
const TokenizerWords = "words"

// Tokenizer counts tokens in concept content. The BPE encoding is loaded on
// first use; when it cannot be loaded every count falls back to words.
type Tokenizer struct {
	encoding string
	log      *zap.SugaredLogger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenizer(encoding string, log *zap.SugaredLogger) *Tokenizer {
	if encoding == "" {
		encoding = TokenizerWords
	}
	return &Tokenizer{encoding: encoding, log: logger.OrNop(log)}
}

func (t *Tokenizer) load() {
	if t.encoding == TokenizerWords {
		return
	}
	enc, err := tiktoken.GetEncoding(t.encoding)
	if err != nil {
		t.log.Warnw("tiktoken encoding unavailable, using word segmentation",
			"encoding", t.encoding, logger.FieldError, err)
		return
	}
	t.enc = enc
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	t.once.Do(t.load)
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return CountWords(text)
}

// Mode reports which tokenizer is in effect.
func (t *Tokenizer) Mode() string {
	t.once.Do(t.load)
	if t.enc != nil {
		return t.encoding
	}
	return TokenizerWords
}

// CountWords counts UAX #29 word segments that contain a letter or digit.
func CountWords(text string) int {
	n := 0
	seg := words.FromString(text)
	for seg.Next() {
		if isWordLike(seg.Value()) {
			n++
		}
	}
	return n
}

func isWordLike(s string) bool {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
		s = s[size:]
	}
	return false
}
