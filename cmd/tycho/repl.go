package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tycholang/tycho/vm"
)

// cmdREPL starts an interactive read-eval-print loop. Declarations
// accumulate into a session preamble so later entries can reference
// earlier classes, functions, and bindings; each entry recompiles the
// preamble plus the new input.
func cmdREPL(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("Tycho REPL (type 'exit' to quit, ':help' for commands)")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	var preamble []string
	lineBuffer := strings.Builder{}

	for {
		if lineBuffer.Len() == 0 {
			fmt.Print(">> ")
		} else {
			fmt.Print(".. ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if lineBuffer.Len() == 0 && (line == "exit" || line == "quit") {
			break
		}

		if lineBuffer.Len() == 0 && strings.HasPrefix(line, ":") {
			preamble = handleREPLCommand(preamble, line)
			continue
		}

		// Empty line executes accumulated input
		if line == "" && lineBuffer.Len() > 0 {
			input := strings.TrimSpace(lineBuffer.String())
			lineBuffer.Reset()
			if input != "" {
				preamble = evalAndPrint(preamble, input)
			}
			continue
		}
		if line == "" {
			continue
		}

		if lineBuffer.Len() > 0 {
			lineBuffer.WriteString("\n")
		}
		lineBuffer.WriteString(line)

		// Balanced input executes immediately
		if bracesBalanced(lineBuffer.String()) {
			input := strings.TrimSpace(lineBuffer.String())
			lineBuffer.Reset()
			if input != "" {
				preamble = evalAndPrint(preamble, input)
			}
		}
	}

	fmt.Println()
	return nil
}

// handleREPLCommand handles REPL meta-commands.
func handleREPLCommand(preamble []string, cmd string) []string {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Println("REPL Commands:")
		fmt.Println("  :help, :h, :?     Show this help")
		fmt.Println("  :session          Show accumulated declarations")
		fmt.Println("  :reset            Forget accumulated declarations")
		fmt.Println("  exit, quit        Exit REPL")
	case ":session":
		if len(preamble) == 0 {
			fmt.Println("(empty session)")
		}
		for _, d := range preamble {
			fmt.Println(d)
		}
	case ":reset":
		fmt.Println("Session cleared")
		return nil
	default:
		fmt.Printf("Unknown command: %s (type :help for commands)\n", cmd)
	}
	return preamble
}

// evalAndPrint compiles the session plus the new input, runs it, and
// prints the script result. Declarations that compile cleanly join the
// session.
func evalAndPrint(preamble []string, input string) []string {
	source := strings.Join(append(append([]string{}, preamble...), input), "\n")

	p, err := vm.Compile(source)
	if err != nil {
		fmt.Printf("Compile error: %v\n", err)
		return preamble
	}

	p.Stdout = os.Stdout
	result, err := p.Run()
	if err != nil {
		fmt.Printf("Error: %v\n", formatRuntimeError(err))
		return preamble
	}

	if !result.IsUndefined() {
		fmt.Println(result.ToDisplayString())
	}

	if isDeclaration(input) {
		preamble = append(preamble, input)
	}
	return preamble
}

// isDeclaration reports whether an input introduces bindings worth
// keeping for later entries.
func isDeclaration(input string) bool {
	for _, prefix := range []string{"class ", "abstract ", "function ", "async ", "let ", "const "} {
		if strings.HasPrefix(input, prefix) {
			return true
		}
	}
	return false
}

// bracesBalanced reports whether every { has a matching }. String
// literals are skipped so braces inside them do not count.
func bracesBalanced(s string) bool {
	depth := 0
	var quote rune
	for _, ch := range s {
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	return depth <= 0 && quote == 0
}
