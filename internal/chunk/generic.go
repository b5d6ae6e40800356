package chunk

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// GenericChunker handles languages with no tree-sitter grammar in the
// registry: C, Objective-C, JSON, and YAML. It follows the same
// natural-boundary idea as MarkdownChunker (split on the language's own
// structural markers rather than parsing a full AST), generalized to
// declaration-shaped and structural-shaped content instead of headings.
type GenericChunker struct{}

// NewGenericChunker creates a new generic chunker. It is stateless.
func NewGenericChunker() *GenericChunker {
	return &GenericChunker{}
}

// Close releases chunker resources. GenericChunker is stateless, so this
// is a no-op for interface consistency with CodeChunker.
func (c *GenericChunker) Close() {}

// SupportedExtensions returns file extensions this chunker handles.
func (c *GenericChunker) SupportedExtensions() []string {
	return []string{".c", ".h", ".m", ".mm", ".json", ".yaml", ".yml"}
}

// Chunk splits a file into semantic chunks based on its detected language.
func (c *GenericChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	switch file.Language {
	case "objc":
		return c.chunkObjC(file)
	case "c", "cpp":
		return c.chunkC(file)
	case "json":
		return c.chunkJSON(file)
	case "yaml":
		return c.chunkYAML(file)
	default:
		return c.chunkC(file)
	}
}

var (
	objcInterfacePattern = regexp.MustCompile(`(?m)^@interface\s+(\w+)(?:\s*:\s*(\w+))?.*$`)
	objcImplPattern      = regexp.MustCompile(`(?m)^@implementation\s+(\w+)`)
	objcCategoryPattern  = regexp.MustCompile(`(?m)^@interface\s+(\w+)\s*\((\w+)\)`)
	objcEndPattern       = regexp.MustCompile(`(?m)^@end\s*$`)
	objcMethodPattern    = regexp.MustCompile(`(?m)^[-+]\s*\([^)]+\)\s*[\w:]+.*$`)
	objcPropertyPattern  = regexp.MustCompile(`(?m)^@property\s*(\([^)]*\))?\s*.+;`)

	cFunctionPattern = regexp.MustCompile(`(?m)^(?:[\w\*\s]+?)\b(\w+)\s*\([^;{]*\)\s*\{`)
	cStructPattern   = regexp.MustCompile(`(?ms)^(?:typedef\s+)?struct\s+(\w*)\s*\{.*?\}\s*(\w*)\s*;`)
	cTypedefPattern  = regexp.MustCompile(`(?m)^typedef\s+.+;`)
	cMacroPattern    = regexp.MustCompile(`(?m)^#define\s+(\w+).*$`)
)

// chunkObjC splits an Objective-C file into interface/implementation/
// category/method/property declarations.
func (c *GenericChunker) chunkObjC(file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	now := time.Now()
	var chunks []*Chunk

	chunks = append(chunks, c.chunkBlocksBetween(file, content, objcCategoryPattern, objcEndPattern, "objc-category", now)...)
	chunks = append(chunks, c.chunkBlocksBetween(file, content, objcImplPattern, objcEndPattern, "objc-impl", now)...)

	// @interface blocks that aren't categories (the interface regex also
	// matches category lines, so exclude lines already claimed by the
	// category regex).
	for _, loc := range objcInterfacePattern.FindAllStringIndex(content, -1) {
		line := content[loc[0]:loc[1]]
		if objcCategoryPattern.MatchString(line) {
			continue
		}
		end := objcEndPattern.FindStringIndex(content[loc[1]:])
		endPos := len(content)
		if end != nil {
			endPos = loc[1] + end[1]
		}
		chunks = append(chunks, c.newGenericChunk(file, content[loc[0]:endPos], loc[0], content, "objc-interface", now))
	}

	for _, loc := range objcMethodPattern.FindAllStringIndex(content, -1) {
		chunks = append(chunks, c.newGenericChunk(file, content[loc[0]:loc[1]], loc[0], content, "objc-method", now))
	}
	for _, loc := range objcPropertyPattern.FindAllStringIndex(content, -1) {
		chunks = append(chunks, c.newGenericChunk(file, content[loc[0]:loc[1]], loc[0], content, "objc-property", now))
	}

	if len(chunks) == 0 {
		return c.chunkByLines(file)
	}
	return chunks, nil
}

// chunkBlocksBetween finds every startPattern match and pairs it with the
// next endPattern match that follows it, emitting one chunk per pair.
func (c *GenericChunker) chunkBlocksBetween(file *FileInput, content string, startPattern, endPattern *regexp.Regexp, kind string, now time.Time) []*Chunk {
	var chunks []*Chunk
	for _, loc := range startPattern.FindAllStringIndex(content, -1) {
		end := endPattern.FindStringIndex(content[loc[1]:])
		endPos := len(content)
		if end != nil {
			endPos = loc[1] + end[1]
		}
		chunks = append(chunks, c.newGenericChunk(file, content[loc[0]:endPos], loc[0], content, kind, now))
	}
	return chunks
}

// chunkC splits a C/C++ file into function, struct, typedef, and macro
// declarations using declaration-boundary regexes (no preprocessor
// expansion or real parsing, since C's grammar is not in the tree-sitter
// registry).
func (c *GenericChunker) chunkC(file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	now := time.Now()
	var chunks []*Chunk

	for _, loc := range cStructPattern.FindAllStringIndex(content, -1) {
		chunks = append(chunks, c.newGenericChunk(file, content[loc[0]:loc[1]], loc[0], content, "c-struct", now))
	}
	for _, loc := range cFunctionPattern.FindAllStringIndex(content, -1) {
		start := loc[0]
		end := matchBraceClose(content, loc[1]-1)
		if end < 0 {
			end = loc[1]
		}
		chunks = append(chunks, c.newGenericChunk(file, content[start:end], start, content, "c-function", now))
	}
	for _, loc := range cTypedefPattern.FindAllStringIndex(content, -1) {
		if strings.HasPrefix(content[loc[0]:], "typedef struct") {
			continue // already captured by cStructPattern
		}
		chunks = append(chunks, c.newGenericChunk(file, content[loc[0]:loc[1]], loc[0], content, "c-typedef", now))
	}
	for _, loc := range cMacroPattern.FindAllStringIndex(content, -1) {
		chunks = append(chunks, c.newGenericChunk(file, content[loc[0]:loc[1]], loc[0], content, "c-macro", now))
	}

	if len(chunks) == 0 {
		return c.chunkByLines(file)
	}
	return chunks, nil
}

// matchBraceClose returns the index just past the closing brace matching
// the opening brace at openIdx, or -1 if unbalanced.
func matchBraceClose(content string, openIdx int) int {
	if openIdx < 0 || openIdx >= len(content) || content[openIdx] != '{' {
		return -1
	}
	depth := 0
	for i := openIdx; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// chunkJSON splits a JSON document into one chunk per top-level object
// member or array element, using jsoniter's streaming decoder to track
// byte offsets without building an in-memory tree of the whole document.
func (c *GenericChunker) chunkJSON(file *FileInput) ([]*Chunk, error) {
	content := file.Content
	now := time.Now()

	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		return c.chunkJSONObject(file, content, now)
	case '[':
		return c.chunkJSONArray(file, content, now)
	default:
		return c.chunkByLines(file)
	}
}

func (c *GenericChunker) chunkJSONObject(file *FileInput, content []byte, now time.Time) ([]*Chunk, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, content)
	var chunks []*Chunk
	cursor := 0

	for field := iter.ReadObject(); field != ""; field = iter.ReadObject() {
		raw := iter.SkipAndReturnBytes()
		if iter.Error != nil && iter.Error.Error() != "EOF" {
			break
		}
		startLine, next := locateAfter(content, cursor, raw)
		cursor = next

		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, field+":"+string(raw)),
			FilePath:    file.Path,
			Content:     "\"" + field + "\": " + string(raw),
			RawContent:  string(raw),
			ContentType: ContentTypeText,
			Kind:        KindBlock,
			Language:    "json",
			StartLine:   startLine,
			EndLine:     startLine + bytes.Count(raw, []byte("\n")),
			Metadata: map[string]string{
				"kind":  "json-object",
				"field": field,
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if len(chunks) == 0 {
		return c.chunkByLines(file)
	}
	return chunks, nil
}

func (c *GenericChunker) chunkJSONArray(file *FileInput, content []byte, now time.Time) ([]*Chunk, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, content)
	var chunks []*Chunk
	cursor := 0
	idx := 0

	for iter.ReadArray() {
		raw := iter.SkipAndReturnBytes()
		if iter.Error != nil && iter.Error.Error() != "EOF" {
			break
		}
		startLine, next := locateAfter(content, cursor, raw)
		cursor = next

		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, string(raw)),
			FilePath:    file.Path,
			Content:     string(raw),
			RawContent:  string(raw),
			ContentType: ContentTypeText,
			Kind:        KindBlock,
			Language:    "json",
			StartLine:   startLine,
			EndLine:     startLine + bytes.Count(raw, []byte("\n")),
			Metadata: map[string]string{
				"kind":  "json-array",
				"index": strconv.Itoa(idx),
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
		idx++
	}

	if len(chunks) == 0 {
		return c.chunkByLines(file)
	}
	return chunks, nil
}

// locateAfter finds raw's next occurrence in content at or after from,
// returning its 1-indexed start line and the offset just past the match
// (for the next call's search start). Falls back to line 1 and from when
// raw can't be located (shouldn't happen for well-formed JSON).
func locateAfter(content []byte, from int, raw []byte) (line, next int) {
	if from > len(content) {
		from = len(content)
	}
	idx := bytes.Index(content[from:], raw)
	if idx < 0 {
		return lineOf(content, from), from
	}
	start := from + idx
	return lineOf(content, start), start + len(raw)
}

// chunkYAML splits a YAML document into one chunk per top-level mapping
// key or sequence item, using yaml.v3's Node API for line numbers.
func (c *GenericChunker) chunkYAML(file *FileInput) ([]*Chunk, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(file.Content, &doc); err != nil {
		return c.chunkByLines(file)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	now := time.Now()
	var chunks []*Chunk

	switch root.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			key := root.Content[i]
			val := root.Content[i+1]
			out, err := yaml.Marshal(map[string]any{key.Value: yamlNodeValue(val)})
			if err != nil {
				continue
			}
			chunks = append(chunks, &Chunk{
				ID:          generateChunkID(file.Path, string(out)),
				FilePath:    file.Path,
				Content:     string(out),
				RawContent:  string(out),
				ContentType: ContentTypeText,
				Kind:        KindBlock,
				Language:    "yaml",
				StartLine:   key.Line,
				EndLine:     val.Line,
				Metadata: map[string]string{
					"kind": "yaml-mapping",
					"key":  key.Value,
				},
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	case yaml.SequenceNode:
		for i, item := range root.Content {
			out, err := yaml.Marshal(yamlNodeValue(item))
			if err != nil {
				continue
			}
			chunks = append(chunks, &Chunk{
				ID:          generateChunkID(file.Path, string(out)),
				FilePath:    file.Path,
				Content:     string(out),
				RawContent:  string(out),
				ContentType: ContentTypeText,
				Kind:        KindBlock,
				Language:    "yaml",
				StartLine:   item.Line,
				EndLine:     item.Line,
				Metadata: map[string]string{
					"kind":  "yaml-sequence",
					"index": strconv.Itoa(i),
				},
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}

	if len(chunks) == 0 {
		return c.chunkByLines(file)
	}
	return chunks, nil
}

// yamlNodeValue decodes a yaml.Node back into a plain Go value so it can
// be re-marshaled standalone (a yaml.Node can't be marshaled directly
// inside a map the way we need for a self-contained chunk).
func yamlNodeValue(n *yaml.Node) any {
	var v any
	_ = n.Decode(&v)
	return v
}

// chunkByLines is the last-resort fallback when no declaration boundary
// is recognized: fixed-size line windows, same approach CodeChunker uses
// for languages outside the tree-sitter registry.
func (c *GenericChunker) chunkByLines(file *FileInput) ([]*Chunk, error) {
	lines := strings.Split(string(file.Content), "\n")
	now := time.Now()
	linesPerChunk := DefaultMaxChunkTokens / 8 // rough chars-per-line assumption
	if linesPerChunk < 20 {
		linesPerChunk = 20
	}

	var chunks []*Chunk
	for start := 0; start < len(lines); start += linesPerChunk {
		end := start + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		content := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}
		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, content),
			FilePath:    file.Path,
			Content:     content,
			RawContent:  content,
			ContentType: ContentTypeCode,
			Kind:        KindBlock,
			Language:    file.Language,
			StartLine:   start + 1,
			EndLine:     end,
			Metadata:    map[string]string{"kind": "line-window"},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return chunks, nil
}

// newGenericChunk builds a Chunk from a matched byte range, deriving line
// numbers from the byte offset into the full content.
func (c *GenericChunker) newGenericChunk(file *FileInput, matched string, offset int, fullContent, kind string, now time.Time) *Chunk {
	startLine := lineOf([]byte(fullContent), offset)
	endLine := startLine + strings.Count(matched, "\n")
	trimmed := strings.TrimRight(matched, "\n \t")

	return &Chunk{
		ID:          generateChunkID(file.Path, trimmed),
		FilePath:    file.Path,
		Content:     trimmed,
		RawContent:  trimmed,
		ContentType: ContentTypeCode,
		Kind:        genericKindFor(kind),
		Language:    file.Language,
		StartLine:   startLine,
		EndLine:     endLine,
		Metadata:    map[string]string{"kind": kind},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// genericKindFor maps a structural-match label (stashed verbatim in
// Metadata["kind"] for debugging) to the re-ranker's Kind classification.
func genericKindFor(kind string) Kind {
	switch kind {
	case "objc-interface", "objc-category", "c-struct", "c-typedef":
		return KindType
	case "objc-impl":
		return KindClass
	case "objc-method", "c-function":
		return KindFunction
	case "objc-property", "c-macro":
		return KindVariable
	default:
		return KindBlock
	}
}

// lineOf returns the 1-indexed line number containing byte offset in content.
func lineOf(content []byte, offset int) int {
	if offset < 0 {
		return 1
	}
	if offset > len(content) {
		offset = len(content)
	}
	return bytes.Count(content[:offset], []byte("\n")) + 1
}

