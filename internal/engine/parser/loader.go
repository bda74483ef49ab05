package parser

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

const LanguagePython = "python"

type GrammarLoader struct {
	languages map[string]*sitter.Language
}

func NewGrammarLoader() *GrammarLoader {
	return &GrammarLoader{
		languages: map[string]*sitter.Language{
			LanguagePython: sitter.NewLanguage(tree_sitter_python.Language()),
		},
	}
}

func (gl *GrammarLoader) Language(name string) (*sitter.Language, error) {
	lang, ok := gl.languages[name]
	if !ok {
		return nil, fmt.Errorf("grammar not loaded: %s", name)
	}
	return lang, nil
}
