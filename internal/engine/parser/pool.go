package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// parserPool recycles tree-sitter parsers for one grammar. A run parses
// many modules, and watch mode parses them again on every rebuild.
//
// At most size idle parsers are kept; extras are closed on put.
// Safe for concurrent use.
type parserPool struct {
	lang *sitter.Language
	idle chan *sitter.Parser
}

func newParserPool(lang *sitter.Language, size int) *parserPool {
	if size < 1 {
		size = 1
	}
	return &parserPool{
		lang: lang,
		idle: make(chan *sitter.Parser, size),
	}
}

// get returns an idle parser or a new one set to the pool's language.
func (p *parserPool) get() (*sitter.Parser, error) {
	select {
	case sp := <-p.idle:
		return sp, nil
	default:
	}
	sp := sitter.NewParser()
	if err := sp.SetLanguage(p.lang); err != nil {
		sp.Close()
		return nil, err
	}
	return sp, nil
}

// put resets sp so it keeps no reference to its last tree. Callers must
// not use sp afterwards.
func (p *parserPool) put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	sp.Reset()
	select {
	case p.idle <- sp:
	default:
		sp.Close()
	}
}

func (p *parserPool) idleCount() int {
	return len(p.idle)
}

// close releases every idle parser.
func (p *parserPool) close() {
	for {
		select {
		case sp := <-p.idle:
			sp.Close()
		default:
			return
		}
	}
}
