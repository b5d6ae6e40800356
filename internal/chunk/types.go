package chunk

import (
	"context"
	"time"
)

// Chunk size defaults (based on 2025 RAG research)
const (
	DefaultMaxChunkTokens = 512 // Optimal for 85-90% recall
	DefaultOverlapTokens  = 64  // ~12.5% overlap
	MinChunkTokens        = 100 // Minimum viable chunk
	TokensPerChar         = 4   // Rough approximation: 4 chars = 1 token
)

// ContentType represents the type of content in a chunk
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// Chunk is a retrievable unit of content
type Chunk struct {
	ID           string            // SHA256(file_path + content hash)[:16]
	FilePath     string            // Relative to project root
	Content      string            // Full content with context
	RawContent   string            // Just the symbol, no context (code only)
	Context      string            // Imports, package decl (code only)
	ContentType  ContentType       // code, markdown, text
	Kind         Kind              // syntactic classification used by the re-ranker
	Language     string            // go, typescript, python, etc.
	StartLine    int               // 1-indexed
	EndLine      int               // Inclusive
	Symbols      []*Symbol         // Functions, classes, etc.
	References   []string          // Identifiers this chunk calls, for graph-aware boosts and multi-hop expansion
	Breadcrumb   string            // package/type/method path, e.g. "store > ChunkStore > SaveChunks"
	Conformances []string          // protocol/interface/base-class names this chunk's type declares
	Metadata     map[string]string // Custom metadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Kind classifies a chunk by the syntactic construct it was extracted from.
// The string values mirror store.Kind exactly so indexmgr can cast between
// them with a plain conversion, the same pattern already used for ContentType.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindType      Kind = "type"
	KindInterface Kind = "interface"
	KindClass     Kind = "class"
	KindVariable  Kind = "variable"
	KindComment   Kind = "comment"
	KindImport    Kind = "import"
	KindFile      Kind = "file"
	KindSection   Kind = "section" // markdown heading section
	KindBlock     Kind = "block"   // generic structural fallback (json/yaml/objc/c)
)

// IsTypeDeclaration reports whether k introduces a named type — a struct,
// interface, or class — the re-ranker's gate for type-declaration boosts.
func (k Kind) IsTypeDeclaration() bool {
	switch k {
	case KindType, KindInterface, KindClass:
		return true
	default:
		return false
	}
}

// IsCallable reports whether k is something invoked directly (a function or
// method), as opposed to a type, variable, or structural declaration.
func (k Kind) IsCallable() bool {
	switch k {
	case KindFunction, KindMethod:
		return true
	default:
		return false
	}
}

// LanguageFamily buckets language into the coarse grouping the boost table
// treats alike: tree-sitter-parsed source, markdown prose, or structural
// config data handled by the generic chunker.
func (k Kind) LanguageFamily(language string) string {
	switch language {
	case "go", "typescript", "tsx", "javascript", "jsx", "python", "c", "cpp", "objc":
		return "code"
	case "markdown":
		return "markup"
	case "json", "yaml":
		return "config"
	default:
		return "text"
	}
}

// symbolKind maps a Symbol's type to the Kind its owning chunk should carry.
func symbolKind(t SymbolType) Kind {
	switch t {
	case SymbolTypeFunction:
		return KindFunction
	case SymbolTypeMethod:
		return KindMethod
	case SymbolTypeClass:
		return KindClass
	case SymbolTypeInterface:
		return KindInterface
	case SymbolTypeType:
		return KindType
	case SymbolTypeConstant, SymbolTypeVariable:
		return KindVariable
	default:
		return KindBlock
	}
}

// FileInput is input for the Chunker interface
type FileInput struct {
	Path     string // Relative path
	Content  []byte // File content
	Language string // go, typescript, python, etc.
}

// Chunker is the interface for splitting files into chunks
type Chunker interface {
	// Chunk splits a file into semantic chunks
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions returns file extensions this chunker handles
	SupportedExtensions() []string
}

// SymbolType represents the kind of code symbol
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol represents a code symbol extracted from parsing
type Symbol struct {
	Name       string
	Type       SymbolType
	StartLine  int
	EndLine    int
	Signature  string
	DocComment string
}

// Tree represents a parsed AST
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point represents a position in the source code
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported language
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Node types that indicate function declarations
	FunctionTypes []string

	// Node types that indicate class/struct definitions
	ClassTypes []string

	// Node types that indicate interface definitions
	InterfaceTypes []string

	// Node types that indicate method definitions
	MethodTypes []string

	// Node types that indicate type definitions
	TypeDefTypes []string

	// Node types that indicate constant declarations
	ConstantTypes []string

	// Node types that indicate variable declarations
	VariableTypes []string

	// Node type for name identifier
	NameField string
}
