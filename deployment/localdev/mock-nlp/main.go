package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/miradorstack/marker-engine/internal/lexicon"
	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/nlp"
)

type enrichRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type enrichResponse struct {
	Tokens    []string             `json:"tokens"`
	Sentences []string             `json:"sentences"`
	POSTags   []models.POSTag      `json:"pos_tags"`
	Entities  []models.NamedEntity `json:"entities"`
	Sentiment map[string]float64   `json:"sentiment"`
	Version   string               `json:"version"`
}

func main() {
	addr := ":8090"
	if v := os.Getenv("MOCK_NLP_ADDRESS"); v != "" {
		addr = v
	}
	basic := nlp.NewBasicEnricher(lexicon.NewIndex(lexicon.Default()))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/enrich", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req enrichRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		actx := models.NewAnalysisContext(req.Text, "", "")
		if err := basic.Enrich(context.Background(), actx); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, enrichResponse{
			Tokens:    actx.Tokens,
			Sentences: actx.Sentences,
			POSTags:   tagTokens(actx.Tokens),
			Entities:  entities(req.Text),
			Sentiment: actx.SentimentScores,
			Version:   "mock-1",
		})
	})

	logger := log.New(log.Writer(), "nlp-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    addr,
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on " + addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// tagTokens assigns coarse tags: punctuation, capitalised nouns, everything else X.
func tagTokens(tokens []string) []models.POSTag {
	tags := make([]models.POSTag, 0, len(tokens))
	for _, tok := range tokens {
		tag := "X"
		switch {
		case !nlp.IsWord(tok):
			tag = "PUNCT"
		case unicode.IsUpper([]rune(tok)[0]):
			tag = "NOUN"
		}
		tags = append(tags, models.POSTag{Token: tok, Tag: tag})
	}
	return tags
}

// entities reports capitalised words that do not start a sentence.
func entities(text string) []models.NamedEntity {
	var out []models.NamedEntity
	sentenceStart := true
	offset := 0
	for _, field := range strings.Fields(text) {
		start := strings.Index(text[offset:], field) + offset
		offset = start + len(field)
		word := strings.TrimFunc(field, func(r rune) bool { return !unicode.IsLetter(r) })
		if word != "" && !sentenceStart && unicode.IsUpper([]rune(word)[0]) {
			out = append(out, models.NamedEntity{Text: word, Label: "MISC", Start: start, End: start + len(word)})
		}
		sentenceStart = strings.ContainsAny(field[len(field)-1:], ".!?")
	}
	return out
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
