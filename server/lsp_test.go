package server

import (
	"errors"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/tycholang/tycho/vm"
)

const lspFixture = `
abstract class Shape {
  abstract area(): number;
  describe(): string {
    return "shape with area " + this.area();
  }
}

class Circle extends Shape {
  radius: number;
  constructor(radius: number) {
    super();
    this.radius = radius;
  }
  override area(): number {
    return 3 * this.radius * this.radius;
  }
  get diameter(): number {
    return this.radius * 2;
  }
}

function makeCircle(r: number): Circle {
  return new Circle(r);
}
`

func compileFixture(t *testing.T) *vm.Program {
	t.Helper()
	p, err := vm.Compile(lspFixture)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return p
}

func TestExtractPrefix(t *testing.T) {
	text := "let circ = makeCi\nclass Foo {}"
	tests := []struct {
		line, ch protocol.UInteger
		want     string
	}{
		{0, 17, "makeCi"},
		{0, 11, ""},
		{0, 13, "ma"},
		{1, 9, "Foo"},
		{5, 0, ""},
	}
	for _, tt := range tests {
		pos := protocol.Position{Line: tt.line, Character: tt.ch}
		if got := extractPrefix(text, pos); got != tt.want {
			t.Errorf("extractPrefix at %d:%d = %q, want %q", tt.line, tt.ch, got, tt.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	text := "let c = new Circle(3);\nc.diameter"
	tests := []struct {
		line, ch protocol.UInteger
		want     string
	}{
		{0, 14, "Circle"},
		{0, 12, "Circle"},
		{1, 0, "c"},
		{1, 5, "diameter"},
		{0, 7, ""},
	}
	for _, tt := range tests {
		pos := protocol.Position{Line: tt.line, Character: tt.ch}
		if got := extractWord(text, pos); got != tt.want {
			t.Errorf("extractWord at %d:%d = %q, want %q", tt.line, tt.ch, got, tt.want)
		}
	}
}

func TestDiagnosticsFor(t *testing.T) {
	if got := diagnosticsFor(nil); len(got) != 0 {
		t.Errorf("nil error: got %d diagnostics, want 0", len(got))
	}

	_, err := vm.Compile("class A {}\nclass A {}")
	if err == nil {
		t.Fatal("duplicate class should not compile")
	}
	diags := diagnosticsFor(err)
	if len(diags) == 0 {
		t.Fatal("compile error should yield diagnostics")
	}
	if diags[0].Source == nil || *diags[0].Source != lspName {
		t.Errorf("diagnostic source: got %v, want %s", diags[0].Source, lspName)
	}
	if !strings.Contains(diags[0].Message, "A") {
		t.Errorf("message should name the class: %q", diags[0].Message)
	}

	// Non-CompileError failures still surface as a single diagnostic.
	diags = diagnosticsFor(errors.New("boom"))
	if len(diags) != 1 || diags[0].Message != "boom" {
		t.Errorf("plain error: got %v", diags)
	}
}

func TestComplete_ClassesAndGlobals(t *testing.T) {
	p := compileFixture(t)

	items := complete(p, "Ci")
	if len(items) != 1 || items[0].Label != "Circle" {
		t.Fatalf("prefix Ci: got %v", items)
	}
	if items[0].Detail == nil || !strings.Contains(*items[0].Detail, "extends Shape") {
		t.Errorf("Circle detail should mention superclass, got %v", items[0].Detail)
	}

	items = complete(p, "Sh")
	if len(items) != 1 || items[0].Label != "Shape" {
		t.Fatalf("prefix Sh: got %v", items)
	}
	if items[0].Detail == nil || !strings.Contains(*items[0].Detail, "abstract") {
		t.Errorf("Shape detail should mention abstract, got %v", items[0].Detail)
	}

	items = complete(p, "makeC")
	if len(items) != 1 || items[0].Label != "makeCircle" {
		t.Fatalf("prefix makeC: got %v", items)
	}
	if items[0].Kind == nil || *items[0].Kind != protocol.CompletionItemKindFunction {
		t.Errorf("makeCircle kind: got %v", items[0].Kind)
	}
}

func TestComplete_MemberNames(t *testing.T) {
	p := compileFixture(t)

	items := complete(p, "dia")
	var labels []string
	for _, it := range items {
		labels = append(labels, it.Label)
	}
	if len(items) != 1 || items[0].Label != "diameter" {
		t.Fatalf("prefix dia: got %v", labels)
	}

	items = complete(p, "ar")
	found := false
	for _, it := range items {
		if it.Label == "area" {
			found = true
		}
	}
	if !found {
		t.Errorf("prefix ar should include area, got %v", items)
	}
}

func TestComplete_SortedAndCaseInsensitive(t *testing.T) {
	p := compileFixture(t)

	items := complete(p, "ci")
	if len(items) != 1 || items[0].Label != "Circle" {
		t.Errorf("case-insensitive match: got %v", items)
	}

	items = complete(p, "d")
	for i := 1; i < len(items); i++ {
		if items[i-1].Label > items[i].Label {
			t.Errorf("items not sorted: %q before %q", items[i-1].Label, items[i].Label)
		}
	}
}

func TestHover_Class(t *testing.T) {
	p := compileFixture(t)

	h := hover(p, "Circle")
	if h == nil {
		t.Fatal("hover on Circle should not be nil")
	}
	content, ok := h.Contents.(protocol.MarkupContent)
	if !ok {
		t.Fatalf("contents: got %T", h.Contents)
	}
	for _, want := range []string{"class Circle", "extends Shape", "radius", "Hierarchy"} {
		if !strings.Contains(content.Value, want) {
			t.Errorf("hover should contain %q:\n%s", want, content.Value)
		}
	}

	h = hover(p, "Shape")
	if h == nil {
		t.Fatal("hover on Shape should not be nil")
	}
	content = h.Contents.(protocol.MarkupContent)
	if !strings.Contains(content.Value, "abstract") {
		t.Errorf("Shape hover should mention abstract:\n%s", content.Value)
	}

	if hover(p, "NoSuchClass") != nil {
		t.Error("hover on unknown class should be nil")
	}
}

func TestHover_MemberListsDeclarers(t *testing.T) {
	p := compileFixture(t)

	h := hover(p, "area")
	if h == nil {
		t.Fatal("hover on area should not be nil")
	}
	content := h.Contents.(protocol.MarkupContent)
	for _, want := range []string{"Circle", "Shape"} {
		if !strings.Contains(content.Value, want) {
			t.Errorf("area hover should list %s:\n%s", want, content.Value)
		}
	}

	if hover(p, "noSuchMember") != nil {
		t.Error("hover on unknown member should be nil")
	}
}

func TestFindDeclaration(t *testing.T) {
	text := "class Circle {}\nfunction makeCircle() {}\nlet classify = 1;"

	line, ch, found := findDeclaration(text, "Circle")
	if !found || line != 0 || ch != 6 {
		t.Errorf("Circle: got (%d,%d,%v), want (0,6,true)", line, ch, found)
	}

	line, ch, found = findDeclaration(text, "makeCircle")
	if !found || line != 1 || ch != 9 {
		t.Errorf("makeCircle: got (%d,%d,%v), want (1,9,true)", line, ch, found)
	}

	// "class" prefix of classify must not match as a declaration of "classify"
	// but "let classify" does.
	line, ch, found = findDeclaration(text, "classify")
	if !found || line != 2 {
		t.Errorf("classify: got (%d,%d,%v), want line 2", line, ch, found)
	}

	if _, _, found := findDeclaration(text, "absent"); found {
		t.Error("absent name should not be found")
	}
}

func TestSuperChain(t *testing.T) {
	p := compileFixture(t)

	circle := p.Classes.Lookup("Circle")
	chain := superChain(circle)
	if len(chain) != 1 || chain[0] != "Shape" {
		t.Errorf("chain: got %v, want [Shape]", chain)
	}

	shape := p.Classes.Lookup("Shape")
	if chain := superChain(shape); len(chain) != 0 {
		t.Errorf("root class chain: got %v, want empty", chain)
	}
}
