package pipeline

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/matna449/annual-report-analyzer/internal/gateway"
	"github.com/matna449/annual-report-analyzer/internal/model"
)

// EntityType is an accepted named-entity type.
type EntityType string

const (
	EntityOrganization EntityType = "ORG"
	EntityLocation     EntityType = "LOC"
	EntityPerson       EntityType = "PER"
)

// entityAliases maps tag types from different NER models onto the accepted types.
var entityAliases = map[string]EntityType{
	"ORG":          EntityOrganization,
	"ORGANIZATION": EntityOrganization,
	"LOC":          EntityLocation,
	"LOCATION":     EntityLocation,
	"GPE":          EntityLocation,
	"PER":          EntityPerson,
	"PERSON":       EntityPerson,
}

// regexEntityCap bounds each list produced by the regex fallback.
const regexEntityCap = 10

// Entity is one merged entity span.
type Entity struct {
	Type EntityType
	Text string
}

// EntityExtractor builds an EntityBag from token-level NER tags.
type EntityExtractor struct {
	gw        Inferencer
	maxChunks int
	workers   int
	limit     int
}

// NewEntityExtractor creates an extractor over the first maxChunks chunks,
// keeping at most limit entities per type.
func NewEntityExtractor(gw Inferencer, maxChunks, workers, limit int) *EntityExtractor {
	if maxChunks <= 0 {
		maxChunks = 3
	}
	if limit <= 0 {
		limit = 15
	}
	return &EntityExtractor{gw: gw, maxChunks: maxChunks, workers: workers, limit: limit}
}

// Extract returns the deduplicated entities of the leading chunks, or the
// regex heuristics when tagging is unavailable or finds nothing.
func (e *EntityExtractor) Extract(ctx context.Context, text string, chunks []model.Chunk) model.EntityBag {
	if !live(e.gw) || len(chunks) == 0 {
		return RegexEntities(text)
	}

	sample := chunks[:min(e.maxChunks, len(chunks))]
	merged := make([][]Entity, len(sample))
	ok := make([]bool, len(sample))

	fanOut(ctx, len(sample), e.workers, func(ctx context.Context, i int) {
		res := e.gw.Call(ctx, gateway.Request{Task: gateway.TaskNER, Input: sample[i].Text})
		if !res.Live() {
			zap.L().Debug("entities: chunk not usable",
				zap.Int("chunk", sample[i].Index),
				zap.String("status", string(res.Status)),
				zap.Error(res.Err),
			)
			return
		}
		merged[i] = MergeTags(res.Payload.Tokens)
		ok[i] = true
	})

	var all []Entity
	for i := range sample {
		if ok[i] {
			all = append(all, merged[i]...)
		}
	}

	bag := bagFrom(all, e.limit)
	if bag.Empty() {
		zap.L().Info("entities: no tagged entities, using regex fallback")
		return RegexEntities(text)
	}
	bag.Method = model.MethodAPI
	return bag
}

// MergeTags folds a BIO token stream into entities. A B- tag flushes the
// buffer and starts a new entity; an I- tag extends the buffer only when the
// types match. Bare entity-group tags are complete entities. WordPiece
// continuations ("##ing") are glued without a space.
func MergeTags(tokens []gateway.Token) []Entity {
	var (
		out     []Entity
		buf     strings.Builder
		bufType EntityType
	)

	flush := func() {
		if bufType != "" {
			if text := strings.TrimSpace(buf.String()); text != "" {
				out = append(out, Entity{Type: bufType, Text: text})
			}
		}
		buf.Reset()
		bufType = ""
	}

	for _, tok := range tokens {
		prefix, typ := splitTag(tok.Tag)
		accepted, known := entityAliases[typ]

		switch prefix {
		case "B":
			flush()
			if !known {
				continue
			}
			bufType = accepted
			buf.WriteString(strings.TrimPrefix(tok.Word, "##"))
		case "I":
			if !known || bufType == "" || accepted != bufType {
				continue
			}
			if rest, ok := strings.CutPrefix(tok.Word, "##"); ok {
				buf.WriteString(rest)
			} else {
				buf.WriteByte(' ')
				buf.WriteString(tok.Word)
			}
		case "":
			if !known {
				continue
			}
			flush()
			if text := strings.TrimSpace(tok.Word); text != "" {
				out = append(out, Entity{Type: accepted, Text: text})
			}
		}
	}
	flush()

	return out
}

// splitTag returns the BIO prefix ("B", "I" or "") and the entity type.
// Outside tags ("O") yield an empty type.
func splitTag(tag string) (string, string) {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if p, t, ok := strings.Cut(tag, "-"); ok && (p == "B" || p == "I") {
		return p, t
	}
	if tag == "O" {
		return "", ""
	}
	return "", tag
}

// bagFrom buckets entities by type, removing case-insensitive duplicates
// while keeping the first-seen casing, and caps each list.
func bagFrom(entities []Entity, limit int) model.EntityBag {
	fold := cases.Fold()
	seen := map[EntityType]map[string]bool{}

	bag := model.EntityBag{Organizations: []string{}, Locations: []string{}, People: []string{}}
	for _, ent := range entities {
		key := fold.String(ent.Text)
		if seen[ent.Type] == nil {
			seen[ent.Type] = map[string]bool{}
		}
		if seen[ent.Type][key] {
			continue
		}

		var list *[]string
		switch ent.Type {
		case EntityOrganization:
			list = &bag.Organizations
		case EntityLocation:
			list = &bag.Locations
		case EntityPerson:
			list = &bag.People
		default:
			continue
		}
		if len(*list) >= limit {
			continue
		}
		seen[ent.Type][key] = true
		*list = append(*list, ent.Text)
	}
	return bag
}

var (
	orgPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z][a-zA-Z]+ (?:Inc|Corp|Corporation|Company|Co|Ltd|LLC)\b`),
		regexp.MustCompile(`\b[A-Z][a-zA-Z]+ Technologies\b`),
		regexp.MustCompile(`\b[A-Z][a-zA-Z]+ Systems\b`),
	}
	locationPattern = regexp.MustCompile(`\b(?:in|at|from) ([A-Z][a-zA-Z]+(?:, [A-Z][a-zA-Z]+)?)\b`)

	// Capitalized words after "in" that are not places.
	locationStopWords = map[string]bool{
		"january": true, "february": true, "march": true, "april": true, "may": true,
		"june": true, "july": true, "august": true, "september": true, "october": true,
		"november": true, "december": true, "monday": true, "tuesday": true,
		"wednesday": true, "thursday": true, "friday": true, "saturday": true,
		"sunday": true, "fiscal": true, "addition": true, "particular": true,
		"the": true, "our": true, "this": true, "order": true, "accordance": true,
	}
)

// RegexEntities is the heuristic used when no tagger is available:
// organization-suffix and preposition-led location patterns.
func RegexEntities(text string) model.EntityBag {
	var found []Entity
	for _, re := range orgPatterns {
		for _, m := range re.FindAllString(text, -1) {
			found = append(found, Entity{Type: EntityOrganization, Text: m})
		}
	}
	for _, m := range locationPattern.FindAllStringSubmatch(text, -1) {
		first, _, _ := strings.Cut(m[1], ",")
		if locationStopWords[strings.ToLower(first)] {
			continue
		}
		found = append(found, Entity{Type: EntityLocation, Text: m[1]})
	}

	bag := bagFrom(found, regexEntityCap)
	bag.Method = model.MethodFallback
	return bag
}
