package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/pscalvm/pscalvm/internal/asm"
	"github.com/pscalvm/pscalvm/internal/config"
	"github.com/pscalvm/pscalvm/internal/vm"
)

const historyFile = ".pscalvm_history"

// runREPL is a read-eval-print loop over a tiny immediate-mode arithmetic
// expression grammar (+ - * / parens integer literals), assembled on the
// fly with internal/asm and executed on a persistent VM so each line can
// see state left behind by the last one. It is the REPL's reduced
// stand-in for the teacher's full source-to-bytecode pipeline, since this
// module carries no Pascal front end.
func runREPL() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if hist, err := os.Open(historyPath()); err == nil {
		line.ReadHistory(hist)
		hist.Close()
	}

	fmt.Printf("pscalvm %s — immediate-mode expression REPL\n", version)
	fmt.Println(`type "exit" or Ctrl-D to quit`)

	m := vm.New(config.Defaults(), os.Stdout)

	for {
		text, err := line.Prompt("pscalvm> ")
		if err != nil {
			break
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}
		line.AppendHistory(text)

		if err := evalLine(m, text); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}

	if hist, err := os.Create(historyPath()); err == nil {
		line.WriteHistory(hist)
		hist.Close()
	}
}

func historyPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, historyFile)
	}
	return historyFile
}

func evalLine(m *vm.VM, text string) error {
	p := &exprParser{tokens: tokenize(text)}
	b := asm.New()
	if err := p.expr(b); err != nil {
		return err
	}
	if p.pos != len(p.tokens) {
		return fmt.Errorf("unexpected trailing input near %q", p.tokens[p.pos])
	}
	b.Halt()

	if err := m.Run(b.Build()); err != nil {
		// m.Run already reported the runtime error through its diag.Reporter.
		return nil
	}
	top, err := m.StackTop()
	if err != nil {
		return nil // empty result (e.g. a builtin-proc statement) is not an error
	}
	fmt.Println(top.String())
	return nil
}

// --- a minimal recursive-descent arithmetic expression parser ---

func tokenize(s string) []string {
	var out []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.ContainsRune("+-*/()", rune(c)):
			out = append(out, string(c))
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			out = append(out, s[i:j])
			i = j
		default:
			out = append(out, string(c))
			i++
		}
	}
	return out
}

type exprParser struct {
	tokens []string
	pos    int
}

func (p *exprParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *exprParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

// expr := term (('+'|'-') term)*
func (p *exprParser) expr(b *asm.Builder) error {
	if err := p.term(b); err != nil {
		return err
	}
	for {
		switch p.peek() {
		case "+":
			p.next()
			if err := p.term(b); err != nil {
				return err
			}
			b.Add()
		case "-":
			p.next()
			if err := p.term(b); err != nil {
				return err
			}
			b.Sub()
		default:
			return nil
		}
	}
}

// term := factor (('*'|'/') factor)*
func (p *exprParser) term(b *asm.Builder) error {
	if err := p.factor(b); err != nil {
		return err
	}
	for {
		switch p.peek() {
		case "*":
			p.next()
			if err := p.factor(b); err != nil {
				return err
			}
			b.Mul()
		case "/":
			p.next()
			if err := p.factor(b); err != nil {
				return err
			}
			b.Div()
		default:
			return nil
		}
	}
}

// factor := INTEGER | '(' expr ')' | '-' factor
func (p *exprParser) factor(b *asm.Builder) error {
	tok := p.next()
	switch {
	case tok == "(":
		if err := p.expr(b); err != nil {
			return err
		}
		if p.next() != ")" {
			return fmt.Errorf("expected ')'")
		}
		return nil
	case tok == "-":
		if err := p.factor(b); err != nil {
			return err
		}
		b.Negate()
		return nil
	case tok != "":
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return fmt.Errorf("unexpected token %q", tok)
		}
		b.PushInt(n)
		return nil
	}
	return fmt.Errorf("unexpected end of input")
}
