// Package search implements the kernel's search engine: a BM25-style
// keyword index with field boosting, an optional vector backend plugin
// interface, and hybrid blending.
package search

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75

	defaultMinScore   = 0.1
	phraseMultiplier  = 1.5
)

var defaultBoosts = map[string]float64{
	"title": 3.0, "name": 3.0,
	"description": 2.0,
	"category":    1.5, "tags": 1.5,
	"content": 1.0,
}

var tokenPattern = regexp.MustCompile(`[a-z0-9_]{2,}`)

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// Document is one indexed item's searchable surface.
type Document struct {
	ID       string
	Type     item.Type
	Title    string
	Preview  string
	Path     string
	Metadata map[string]any

	// Fields maps field name (title, description, category, tags,
	// content, ...) to its raw text; the index tokenizes and weights
	// each field independently.
	Fields map[string]string
}

// Result is one ranked search hit.
type Result struct {
	ID         string
	Type       item.Type
	Score      float64
	Title      string
	Preview    string
	Path       string
	Metadata   map[string]any
	SearchType string // "keyword" | "vector" | "hybrid"
	Quality    string // "good" | "degraded"
}

type docIndex struct {
	doc       *Document
	fieldTF   map[string]map[string]int // field -> term -> count
	weightedLen float64
}

// Index is the BM25 keyword engine. Safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	docs   map[string]*docIndex // key = string(type)+"/"+id
	df     map[string]int       // term -> number of docs containing it
	boosts map[string]float64

	totalWeightedLen float64
}

// NewIndex builds an empty Index. Pass nil to use the default field
// boosts.
func NewIndex(boosts map[string]float64) *Index {
	if boosts == nil {
		boosts = defaultBoosts
	}
	return &Index{
		docs:   make(map[string]*docIndex),
		df:     make(map[string]int),
		boosts: boosts,
	}
}

func docKey(d *Document) string { return string(d.Type) + "/" + d.ID }

// Upsert adds or replaces a document in the index, recomputing its
// weighted length and document-frequency contributions.
func (x *Index) Upsert(d *Document) {
	x.mu.Lock()
	defer x.mu.Unlock()

	key := docKey(d)
	if old, ok := x.docs[key]; ok {
		x.removeLocked(key, old)
	}

	di := &docIndex{doc: d, fieldTF: make(map[string]map[string]int)}
	seen := make(map[string]bool)
	for field, text := range d.Fields {
		tf := make(map[string]int)
		for _, tok := range tokenize(text) {
			tf[tok]++
			seen[tok] = true
		}
		di.fieldTF[field] = tf
		di.weightedLen += x.boost(field) * float64(len(tokenize(text)))
	}
	for tok := range seen {
		x.df[tok]++
	}
	x.docs[key] = di
	x.totalWeightedLen += di.weightedLen
}

// Remove drops a document from the index.
func (x *Index) Remove(typ item.Type, id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	key := string(typ) + "/" + id
	if old, ok := x.docs[key]; ok {
		x.removeLocked(key, old)
	}
}

func (x *Index) removeLocked(key string, di *docIndex) {
	for _, tf := range di.fieldTF {
		for tok := range tf {
			if x.df[tok] > 0 {
				x.df[tok]--
			}
		}
	}
	x.totalWeightedLen -= di.weightedLen
	delete(x.docs, key)
}

func (x *Index) boost(field string) float64 {
	if b, ok := x.boosts[field]; ok {
		return b
	}
	return 1.0
}

func (x *Index) avgWeightedLen() float64 {
	if len(x.docs) == 0 {
		return 1
	}
	return x.totalWeightedLen / float64(len(x.docs))
}

func (x *Index) idf(term string) float64 {
	n := float64(len(x.docs))
	df := float64(x.df[term])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Search runs a BM25 query, optionally filtered by itemType ("" = all),
// returning results sorted descending by score with scores below
// minScore dropped. minScore <= 0 uses the spec default (0.1).
func (x *Index) Search(query string, itemType item.Type, limit int, minScore float64) []Result {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if minScore <= 0 {
		minScore = defaultMinScore
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	phrase := strings.ToLower(strings.Join(terms, " "))
	avgLen := x.avgWeightedLen()

	var results []Result
	for _, di := range x.docs {
		if itemType != "" && di.doc.Type != itemType {
			continue
		}
		score := x.scoreDoc(di, terms, avgLen)
		if score <= 0 {
			continue
		}
		if containsPhrase(di, phrase) {
			score *= phraseMultiplier
		}
		if score < minScore {
			continue
		}
		results = append(results, Result{
			ID: di.doc.ID, Type: di.doc.Type, Score: score,
			Title: di.doc.Title, Preview: di.doc.Preview, Path: di.doc.Path,
			Metadata: di.doc.Metadata, SearchType: "keyword", Quality: "good",
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (x *Index) scoreDoc(di *docIndex, terms []string, avgLen float64) float64 {
	var total float64
	for _, term := range terms {
		var weightedTF float64
		for field, tf := range di.fieldTF {
			if c, ok := tf[term]; ok {
				weightedTF += x.boost(field) * float64(c)
			}
		}
		if weightedTF == 0 {
			continue
		}
		idf := x.idf(term)
		norm := 1 - bm25B + bm25B*di.weightedLen/avgLen
		total += idf * (weightedTF * (bm25K1 + 1)) / (weightedTF + bm25K1*norm)
	}
	return total
}

func containsPhrase(di *docIndex, phrase string) bool {
	if !strings.Contains(phrase, " ") {
		return false
	}
	for field := range di.fieldTF {
		text, ok := di.doc.Fields[field]
		if ok && strings.Contains(strings.ToLower(text), phrase) {
			return true
		}
	}
	return false
}
