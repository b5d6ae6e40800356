package chunk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Exercises the real parse->Chunk path: CodeChunker must populate Kind,
// Breadcrumb, Conformances, and References on every chunk it emits, not
// just Symbols/Signature/DocComment.

func TestCodeChunker_GoTypeDeclaration_SetsKindAndBreadcrumb(t *testing.T) {
	source := `package store

type ChunkStore struct {
	db *sql.DB
}

// SaveChunks persists chunks to the database.
func (c *ChunkStore) SaveChunks(chunks []*Chunk) error {
	return validate(chunks)
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "store/chunk_store.go",
		Content:  []byte(source),
		Language: "go",
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	typeChunk := chunks[0]
	assert.Equal(t, KindType, typeChunk.Kind)
	assert.True(t, typeChunk.Kind.IsTypeDeclaration())
	assert.False(t, typeChunk.Kind.IsCallable())
	assert.Equal(t, "store > ChunkStore", typeChunk.Breadcrumb)

	methodChunk := chunks[1]
	assert.Equal(t, KindMethod, methodChunk.Kind)
	assert.True(t, methodChunk.Kind.IsCallable())
	assert.Equal(t, "store > ChunkStore > SaveChunks", methodChunk.Breadcrumb)
	assert.Contains(t, methodChunk.References, "validate")
}

func TestCodeChunker_GoFunction_HasNoConformances(t *testing.T) {
	// Go has no nominal conformance syntax: interfaces are satisfied
	// structurally, so a Go chunk never carries a Conformances list.
	source := `package util

func Sum(nums []int) int {
	total := 0
	for _, n := range nums {
		total += accumulate(total, n)
	}
	return total
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "util/sum.go",
		Content:  []byte(source),
		Language: "go",
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, KindFunction, chunks[0].Kind)
	assert.Empty(t, chunks[0].Conformances)
	assert.Contains(t, chunks[0].References, "accumulate")
	assert.Equal(t, "util > Sum", chunks[0].Breadcrumb)
}

func TestCodeChunker_TypeScriptClass_ExtractsConformances(t *testing.T) {
	source := `import { Base } from "./base";

class Widget extends Base implements Renderable, Serializable {
	render(): void {
		this.paint();
	}
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "widget.ts",
		Content:  []byte(source),
		Language: "typescript",
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	classChunk := chunks[0]
	assert.Equal(t, KindClass, classChunk.Kind)
	assert.True(t, classChunk.Kind.IsTypeDeclaration())
	assert.Contains(t, classChunk.Conformances, "Renderable")
	assert.Contains(t, classChunk.Conformances, "Serializable")
	assert.Contains(t, classChunk.Conformances, "Base")
}

func TestCodeChunker_PythonClass_ExtractsBaseClassConformances(t *testing.T) {
	source := `class Handler(BaseHandler, Loggable):
    def handle(self, event):
        self.log(event)
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "handler.py",
		Content:  []byte(source),
		Language: "python",
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	classChunk := chunks[0]
	assert.Equal(t, KindClass, classChunk.Kind)
	assert.Contains(t, classChunk.Conformances, "BaseHandler")
	assert.Contains(t, classChunk.Conformances, "Loggable")
}

func TestKind_LanguageFamily(t *testing.T) {
	var k Kind
	assert.Equal(t, "code", k.LanguageFamily("go"))
	assert.Equal(t, "markup", k.LanguageFamily("markdown"))
	assert.Equal(t, "config", k.LanguageFamily("json"))
	assert.Equal(t, "text", k.LanguageFamily("unknown"))
}

func TestGenericChunker_ObjCInterface_SetsKindType(t *testing.T) {
	source := `@interface Widget : NSObject
- (void)render;
@end
`
	chunker := NewGenericChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "Widget.h",
		Content:  []byte(source),
		Language: "objc",
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var sawType bool
	for _, c := range chunks {
		if c.Metadata["kind"] == "objc-interface" {
			assert.Equal(t, KindType, c.Kind)
			sawType = true
		}
	}
	assert.True(t, sawType, "expected an objc-interface chunk")
}

func TestMarkdownChunker_Section_SetsKindAndBreadcrumb(t *testing.T) {
	source := `# Guide

## Setup

Install the dependencies first.
`
	chunker := NewMarkdownChunker()
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "guide.md",
		Content:  []byte(source),
		Language: "markdown",
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.Equal(t, KindSection, c.Kind)
		assert.NotEmpty(t, c.Breadcrumb)
	}
}
