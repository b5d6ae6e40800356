package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/Aman-CERP/codesearch/internal/store"
)

// Boost multipliers applied by the re-ranker. Defaults per the spec's boost
// table; a production deployment may tune these via BoostConfig.
const (
	BoostSourcePath       = 1.25
	BoostDocsPath         = 0.9
	BoostTestPath         = 0.8
	BoostArchivePath      = 0.5
	BoostPublicSignature  = 1.1
	BoostTypeDeclaration  = 1.5
	BoostConformanceOnType = 3.0
	BoostConformanceOther  = 1.5
	BoostRareExactSymbol   = 2.5
	BoostBoilerplateExt    = 0.5
)

// standardProtocols are conformances that, standing alone on an extension
// chunk, mark it as boilerplate (Equatable/Codable-style conformance) rather
// than a meaningful type declaration.
var standardProtocols = map[string]struct{}{
	"Comparable":                 {},
	"Equatable":                  {},
	"Hashable":                   {},
	"Codable":                    {},
	"Sendable":                   {},
	"CustomStringConvertible":    {},
	"CustomDebugStringConvertible": {},
}

var (
	protocolNamePattern = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)
	conformanceQuery     = regexp.MustCompile(`(?i)\b(implements|conforms to|what implements|who implements)\b`)
	conceptualQuery       = regexp.MustCompile(`(?i)\b(how|what|where|why)\b`)
	reservedWords         = map[string]struct{}{
		"The": {}, "This": {}, "That": {}, "With": {}, "From": {}, "What": {}, "How": {}, "Why": {}, "Where": {},
	}
)

// TermFrequencyLookup is satisfied by BM25 indexes that can report how many
// documents contain a given term verbatim, used by the rare-identifier boost.
type TermFrequencyLookup interface {
	TermFrequency(ctx context.Context, term string) (int, error)
}

// RareTermThreshold is the document-frequency cutoff below which a term is
// considered rare enough to earn the exact-symbol boost.
const RareTermThreshold = 10

// Reranker reranks search results using a cross-encoder model. Cross-encoders
// jointly encode query-document pairs for more accurate relevance scoring
// than bi-encoders, but at higher computational cost.
//
// BoostReranker below is unrelated: it is a deterministic, metadata-aware
// multiplier pass applied to every search (§4.H), while this interface
// describes an optional, heavier ML re-scoring stage.

// BoostReranker applies the deterministic multiplicative boost table to
// already-fused search results: final(c) = base(c) * ∏ boosts(c, query).
//
// Grounded on the teacher's ApplyTestFilePenalty/ApplyPathBoost (options.go)
// and PatternClassifier (patterns.go), generalized into the full boost set.
type BoostReranker struct {
	termFreq TermFrequencyLookup
}

// NewBoostReranker creates a re-ranker. termFreq may be nil, in which case
// the rare-exact-symbol boost never fires.
func NewBoostReranker(termFreq TermFrequencyLookup) *BoostReranker {
	return &BoostReranker{termFreq: termFreq}
}

// Rerank multiplies each result's Score by every applicable boost and
// stable-sorts the slice by the resulting score, descending. Ties are
// broken by higher similarity, then shorter path, then earlier start line,
// matching §4.G.2 step 7.
func (b *BoostReranker) Rerank(ctx context.Context, query string, results []*SearchResult) []*SearchResult {
	isConformance, conformanceTarget := classifyConformanceQuery(query)
	isConceptual := conceptualQuery.MatchString(query)
	looksLikeType := isProtocolNameLike(query)

	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		r.Score *= b.pathBoost(r.Chunk.FilePath)
		r.Score *= b.signatureBoost(r.Chunk.Signature)
		r.Score *= b.typeDeclarationBoost(r.Chunk, looksLikeType)
		r.Score *= b.conformanceBoost(r.Chunk, isConformance, conformanceTarget)
		r.Score *= b.rareSymbolBoost(ctx, r.Chunk, query)
		r.Score *= b.boilerplateExtensionBoost(r.Chunk, isConceptual)
	}

	stableSortResults(results)
	return results
}

func (b *BoostReranker) pathBoost(path string) float64 {
	switch {
	case strings.Contains(path, "/benchmarks/") || strings.Contains(path, "/archive/"):
		return BoostArchivePath
	case strings.Contains(path, "/Tests/") || strings.Contains(path, "/test/") || strings.HasSuffix(path, "_test.go"):
		return BoostTestPath
	case strings.Contains(path, "/docs/") || strings.Contains(path, "/spec/"):
		return BoostDocsPath
	case strings.Contains(path, "/Sources/") || strings.Contains(path, "/src/") || strings.Contains(path, "/internal/") || strings.Contains(path, "/pkg/"):
		return BoostSourcePath
	default:
		return 1.0
	}
}

func (b *BoostReranker) signatureBoost(signature string) float64 {
	trimmed := strings.TrimSpace(signature)
	if strings.HasPrefix(trimmed, "public ") || strings.HasPrefix(trimmed, "export ") || strings.HasPrefix(trimmed, "func ") && startsUpper(trimmed, 5) {
		return BoostPublicSignature
	}
	return 1.0
}

// startsUpper reports whether the rune at offset i in s is an uppercase
// letter, treating a Go exported function signature ("func Foo(") as the
// public-equivalent of an explicit `public` modifier.
func startsUpper(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r := rune(s[i])
	return r >= 'A' && r <= 'Z'
}

func isTypeDeclarationKind(k store.Kind) bool {
	switch k {
	case store.KindType, store.KindInterface, store.KindClass:
		return true
	default:
		return false
	}
}

func (b *BoostReranker) typeDeclarationBoost(chunk *store.Chunk, looksLikeType bool) float64 {
	if looksLikeType && isTypeDeclarationKind(chunk.Kind) {
		return BoostTypeDeclaration
	}
	return 1.0
}

func (b *BoostReranker) conformanceBoost(chunk *store.Chunk, isConformance bool, target string) float64 {
	if !isConformance || target == "" {
		return 1.0
	}
	if !hasConformance(chunk.Conformances, target) {
		return 1.0
	}
	if isTypeDeclarationKind(chunk.Kind) {
		return BoostConformanceOnType
	}
	return BoostConformanceOther
}

func hasConformance(conformances []string, target string) bool {
	for _, c := range conformances {
		if strings.EqualFold(c, target) {
			return true
		}
	}
	return false
}

func (b *BoostReranker) rareSymbolBoost(ctx context.Context, chunk *store.Chunk, query string) float64 {
	if b.termFreq == nil {
		return 1.0
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || strings.Contains(trimmed, " ") {
		return 1.0
	}
	if !symbolsContain(chunk.Symbols, trimmed) {
		return 1.0
	}
	freq, err := b.termFreq.TermFrequency(ctx, trimmed)
	if err != nil || freq >= RareTermThreshold {
		return 1.0
	}
	return BoostRareExactSymbol
}

// symbolsContain checks for a case-sensitive exact match against symbol
// names, per the spec's explicit case-sensitivity requirement (avoids
// false positives on common words for mixed-case queries).
func symbolsContain(symbols []*store.Symbol, name string) bool {
	for _, s := range symbols {
		if s.Name == name {
			return true
		}
	}
	return false
}

func (b *BoostReranker) boilerplateExtensionBoost(chunk *store.Chunk, isConceptual bool) float64 {
	if !isConceptual {
		return 1.0
	}
	if chunk.Kind != store.KindClass && chunk.Kind != store.KindType {
		return 1.0
	}
	if len(chunk.Conformances) != 1 {
		return 1.0
	}
	if _, ok := standardProtocols[chunk.Conformances[0]]; ok {
		return BoostBoilerplateExt
	}
	return 1.0
}

// isProtocolNameLike reports whether query is a single PascalCase token and
// not a common reserved word, the spec's "protocol-name-like" predicate.
func isProtocolNameLike(query string) bool {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || strings.Contains(trimmed, " ") {
		return false
	}
	if !protocolNamePattern.MatchString(trimmed) {
		return false
	}
	if _, reserved := reservedWords[trimmed]; reserved {
		return false
	}
	return true
}

// classifyConformanceQuery reports whether query asks "what/who implements
// X" and extracts X (the last capitalized-looking token in the query).
func classifyConformanceQuery(query string) (bool, string) {
	if !conformanceQuery.MatchString(query) {
		return false, ""
	}
	fields := strings.Fields(query)
	for i := len(fields) - 1; i >= 0; i-- {
		token := strings.Trim(fields[i], "?.,!\"'")
		if token != "" && token[0] >= 'A' && token[0] <= 'Z' {
			return true, token
		}
	}
	return true, ""
}

// stableSortResults orders results by final score descending, then
// similarity, then shorter path, then earlier start line, per §4.G.2 step 7.
func stableSortResults(results []*SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.VecScore != b.VecScore {
			return a.VecScore > b.VecScore
		}
		aPath, bPath := "", ""
		aLine, bLine := 0, 0
		if a.Chunk != nil {
			aPath, aLine = a.Chunk.FilePath, a.Chunk.StartLine
		}
		if b.Chunk != nil {
			bPath, bLine = b.Chunk.FilePath, b.Chunk.StartLine
		}
		if len(aPath) != len(bPath) {
			return len(aPath) < len(bPath)
		}
		return aLine < bLine
	})
}
