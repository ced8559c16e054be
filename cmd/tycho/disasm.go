package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/tycholang/tycho/vm"
)

// cmdDisasm compiles a file and prints the bytecode listing for every
// chunk: the top-level script, global functions, and class members.
func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tycho disasm <file.ty>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	p, err := vm.Compile(string(data))
	if err != nil {
		return err
	}

	if p.Script != nil {
		fmt.Print(p.Script.Disassemble())
		fmt.Println()
	}

	for _, name := range sortedGlobals(p) {
		closure := p.Globals[name].AsClosure()
		if closure == nil || closure.Chunk == nil {
			continue
		}
		fmt.Print(closure.Chunk.Disassemble())
		fmt.Println()
	}

	for _, name := range p.Classes.Names() {
		cls := p.Classes.Lookup(name)
		for _, m := range classChunks(cls) {
			fmt.Print(m.Disassemble())
			fmt.Println()
		}
	}

	for i, fn := range p.FnTable {
		fmt.Printf("-- fn table entry %d --\n", i)
		fmt.Print(fn.Disassemble())
		fmt.Println()
	}

	return nil
}

func sortedGlobals(p *vm.Program) []string {
	var names []string
	for name := range p.Globals {
		if c := p.Globals[name].AsClosure(); c != nil && c.Chunk != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// classChunks collects the compiled chunks of a class in a stable
// order: constructor, methods, accessors, statics.
func classChunks(cls *vm.Class) []*vm.Chunk {
	var chunks []*vm.Chunk
	add := func(m *vm.Method) {
		if m != nil && m.Chunk != nil {
			chunks = append(chunks, m.Chunk)
		}
	}
	add(cls.Constructor)
	for _, name := range sortedMethodKeys(cls.Methods) {
		add(cls.Methods[name])
	}
	for _, name := range sortedMethodKeys(cls.Getters) {
		add(cls.Getters[name])
	}
	for _, name := range sortedMethodKeys(cls.Setters) {
		add(cls.Setters[name])
	}
	for _, name := range sortedMethodKeys(cls.StaticMethods) {
		add(cls.StaticMethods[name])
	}
	return chunks
}

func sortedMethodKeys(methods map[string]*vm.Method) []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
