package syntax

import (
	"testing"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
)

func rustLanguage() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_rust.Language())
}

func TestParserPool_GetPut(t *testing.T) {
	pool := NewParserPool(rustLanguage())

	sp := pool.Get()
	if sp == nil {
		t.Fatal("expected non-nil parser from pool")
	}
	if pool.InUse() != 1 {
		t.Fatalf("expected one leased parser, got %d", pool.InUse())
	}
	pool.Put(sp)
	if pool.InUse() != 0 {
		t.Fatalf("expected no leased parsers, got %d", pool.InUse())
	}
}

func TestParserPool_PutNil(t *testing.T) {
	pool := NewParserPool(rustLanguage())
	pool.Put(nil)
}

func TestParserPool_LanguageSetAfterReset(t *testing.T) {
	pool := NewParserPool(rustLanguage())

	sp := pool.Get()
	sp.Reset()
	pool.Put(sp)

	sp2 := pool.Get()
	defer pool.Put(sp2)

	tree := sp2.Parse([]byte("mod ok {}\n"), nil)
	if tree == nil {
		t.Fatal("parser should still parse after Reset and Get")
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		t.Fatal("expected error-free tree")
	}
}
