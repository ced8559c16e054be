// Package server exposes the Tycho compiler to editors over LSP.
package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/tycholang/tycho/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "tycho-lsp"

// LspServer bridges LSP editor features to the Tycho compiler. Each
// open document compiles independently; the last successful program
// per document backs completion and hover while the user types through
// broken states.
type LspServer struct {
	mu       sync.Mutex
	docs     map[string]string      // URI → full document content
	programs map[string]*vm.Program // URI → last successful compile

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:     make(map[string]string),
		programs: make(map[string]*vm.Program),
		version:  "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Tycho LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.recompile(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.recompile(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	delete(s.programs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Diagnostics ---

// recompile compiles the document, retains the program on success, and
// publishes one diagnostic per compile error.
func (s *LspServer) recompile(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	program, err := vm.Compile(text)

	s.mu.Lock()
	if err == nil {
		s.programs[string(uri)] = program
	}
	s.mu.Unlock()

	diagnostics := diagnosticsFor(err)
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnosticsFor converts a compile failure into LSP diagnostics.
func diagnosticsFor(err error) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	if err == nil {
		return diagnostics
	}

	messages := []string{err.Error()}
	if ce, ok := err.(*vm.CompileError); ok {
		messages = ce.Messages
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	for _, msg := range messages {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: 0, Character: 0},
				End:   protocol.Position{Line: 0, Character: 0},
			},
			Severity: &severity,
			Source:   &source,
			Message:  msg,
		})
	}
	return diagnostics
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	program := s.programs[string(uri)]
	s.mu.Unlock()

	if !ok || program == nil {
		return nil, nil
	}

	prefix := extractPrefix(text, pos)
	if prefix == "" {
		return nil, nil
	}

	return complete(program, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	program := s.programs[string(uri)]
	s.mu.Unlock()

	if !ok || program == nil {
		return nil, nil
	}

	word := extractWord(text, pos)
	if word == "" {
		return nil, nil
	}

	return hover(program, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	word := extractWord(text, pos)
	if word == "" {
		return nil, nil
	}

	line, ch, found := findDeclaration(text, word)
	if !found {
		return nil, nil
	}

	return []protocol.Location{{
		URI: uri,
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(ch)},
			End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(ch + len(word))},
		},
	}}, nil
}

// complete gathers class names, globals, and member names matching the
// prefix from a compiled program.
func complete(p *vm.Program, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	for _, name := range p.Classes.Names() {
		cls := p.Classes.Lookup(name)
		if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			continue
		}
		kind := protocol.CompletionItemKindClass
		detail := "class"
		if cls.Superclass != nil {
			detail = fmt.Sprintf("class (extends %s)", cls.Superclass.Name)
		}
		if cls.IsAbstract {
			detail = "abstract " + detail
		}
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	for name := range p.Globals {
		if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			continue
		}
		if p.Classes.Lookup(name) != nil {
			continue // already added as class
		}
		kind := protocol.CompletionItemKindVariable
		detail := "global"
		if fn := p.Globals[name].AsClosure(); fn != nil {
			kind = protocol.CompletionItemKindFunction
			detail = "function"
		}
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	for _, name := range memberNames(p) {
		if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			continue
		}
		kind := protocol.CompletionItemKindMethod
		detail := "member"
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// memberNames collects the distinct method and accessor names declared
// across all classes.
func memberNames(p *vm.Program) []string {
	seen := map[string]bool{}
	for _, name := range p.Classes.Names() {
		cls := p.Classes.Lookup(name)
		for m := range cls.Methods {
			seen[m] = true
		}
		for m := range cls.Getters {
			seen[m] = true
		}
		for m := range cls.Setters {
			seen[m] = true
		}
		for m := range cls.StaticMethods {
			seen[m] = true
		}
	}
	names := make([]string, 0, len(seen))
	for m := range seen {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// hover renders markdown documentation for a class or a member name.
func hover(p *vm.Program, word string) *protocol.Hover {
	if len(word) > 0 && unicode.IsUpper(rune(word[0])) {
		cls := p.Classes.Lookup(word)
		if cls == nil {
			return nil
		}

		var b strings.Builder
		if cls.IsAbstract {
			b.WriteString("abstract ")
		}
		fmt.Fprintf(&b, "**class %s**", cls.Name)
		if cls.Superclass != nil {
			fmt.Fprintf(&b, " extends %s", cls.Superclass.Name)
		}
		b.WriteString("\n\n")

		if len(cls.Fields) > 0 {
			names := make([]string, len(cls.Fields))
			for i, f := range cls.Fields {
				names[i] = f.Name
			}
			fmt.Fprintf(&b, "Fields: `%s`\n\n", strings.Join(names, ", "))
		}

		fmt.Fprintf(&b, "%d methods, %d accessors, %d static members",
			len(cls.Methods), len(cls.Getters)+len(cls.Setters), len(cls.StaticMethods)+len(cls.StaticFields))

		if chain := superChain(cls); len(chain) > 0 {
			fmt.Fprintf(&b, "\n\n**Hierarchy:** %s", strings.Join(chain, " < "))
		}

		return &protocol.Hover{
			Contents: protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: b.String(),
			},
		}
	}

	// Lowercase word: list the classes declaring a member of that name.
	var declarers []string
	for _, name := range p.Classes.Names() {
		cls := p.Classes.Lookup(name)
		if cls.Methods[word] != nil || cls.Getters[word] != nil ||
			cls.Setters[word] != nil || cls.StaticMethods[word] != nil {
			declarers = append(declarers, name)
		}
	}
	if len(declarers) == 0 {
		return nil
	}
	sort.Strings(declarers)

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", word)
	fmt.Fprintf(&b, "Declared by %d classes:\n", len(declarers))
	for _, name := range declarers {
		fmt.Fprintf(&b, "- %s\n", name)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// superChain returns superclass names from immediate parent to root.
func superChain(cls *vm.Class) []string {
	var names []string
	for cur := cls.Superclass; cur != nil; cur = cur.Superclass {
		names = append(names, cur.Name)
	}
	return names
}

// findDeclaration locates the `class`, `function`, or variable
// declaration of word in the document text.
func findDeclaration(text, word string) (line, ch int, found bool) {
	markers := []string{
		"class " + word,
		"function " + word,
		"let " + word,
		"const " + word,
	}
	for i, l := range strings.Split(text, "\n") {
		for _, marker := range markers {
			idx := strings.Index(l, marker)
			if idx < 0 {
				continue
			}
			// Reject partial identifier matches like "classify".
			end := idx + len(marker)
			if end < len(l) && isIdentChar(rune(l[end])) {
				continue
			}
			return i, idx + strings.Index(marker, word), true
		}
	}
	return 0, 0, false
}

func isIdentChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if isIdentChar(ch) {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdentChar(rune(line[start-1])) {
		start--
	}

	end := col
	for end < len(line) && isIdentChar(rune(line[end])) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
