package nlp

import (
	"context"

	"github.com/miradorstack/marker-engine/internal/lexicon"
	"github.com/miradorstack/marker-engine/internal/models"
)

const basicVersion = "1.0.0"

// BasicEnricher is the in-process backend: tokenizer, sentence splitter and lexicon
// sentiment. It never fails and is always available.
type BasicEnricher struct {
	lex *lexicon.Index
}

// NewBasicEnricher builds a BasicEnricher over lex. A nil index uses the default lexicon.
func NewBasicEnricher(lex *lexicon.Index) *BasicEnricher {
	if lex == nil {
		lex = lexicon.NewIndex(lexicon.Default())
	}
	return &BasicEnricher{lex: lex}
}

// Enrich fills tokens, sentences and sentiment scores.
func (b *BasicEnricher) Enrich(ctx context.Context, actx *models.AnalysisContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	actx.Tokens = Tokenize(actx.Text)
	actx.Sentences = SplitSentences(actx.Text)
	actx.SentimentScores = b.sentiment(actx.Tokens)
	actx.Metadata["nlp_service"] = b.Name()
	actx.Metadata["nlp_version"] = basicVersion
	return nil
}

// IsAvailable always reports true.
func (b *BasicEnricher) IsAvailable() bool { return true }

// Name identifies the backend in result metadata.
func (b *BasicEnricher) Name() string { return "basic" }

// sentiment labels each word token and returns label shares that sum to 1.
func (b *BasicEnricher) sentiment(tokens []string) map[string]float64 {
	var pos, neg, neutral float64
	for _, tok := range tokens {
		if !IsWord(tok) {
			continue
		}
		switch {
		case b.lex.Positive.Contains(tok):
			pos++
		case b.lex.Negative.Contains(tok):
			neg++
		default:
			neutral++
		}
	}
	total := pos + neg + neutral
	if total == 0 {
		return map[string]float64{"positive": 0, "negative": 0, "neutral": 1}
	}
	return map[string]float64{
		"positive": pos / total,
		"negative": neg / total,
		"neutral":  neutral / total,
	}
}
