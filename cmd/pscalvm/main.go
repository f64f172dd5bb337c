// Command pscalvm is the reference frontend for the VM in internal/vm: a
// REPL, a bytecode-cache runner, and a disassembler/profiler, in the
// shape of the teacher's cmd/smog frontend adapted to this module's
// bytecode-cache-first pipeline (there is no Pascal-source front end
// here, only the compiled .pbc cache format internal/bytecode reads and
// writes).
package main

import (
	"fmt"
	"os"

	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/config"
	"github.com/pscalvm/pscalvm/internal/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("pscalvm version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		requireFile(2, "run")
		runBytecodeFile(os.Args[2])
	case "disassemble", "disasm":
		requireFile(2, "disassemble")
		disassembleFile(os.Args[2])
	case "profile":
		requireFile(2, "profile")
		profileFile(os.Args[2])
	default:
		runBytecodeFile(os.Args[1])
	}
}

func requireFile(argIdx int, cmd string) {
	if len(os.Args) <= argIdx {
		fmt.Fprintf(os.Stderr, "Error: no file specified\n\nUsage: pscalvm %s <file.pbc>\n", cmd)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("pscalvm - bytecode VM for the stack-based tagged-value machine (§4)")
	fmt.Println("\nUsage:")
	fmt.Println("  pscalvm                      Start the immediate-mode REPL")
	fmt.Println("  pscalvm [file.pbc]           Run a compiled bytecode cache file")
	fmt.Println("  pscalvm run <file.pbc>       Run a compiled bytecode cache file")
	fmt.Println("  pscalvm disassemble <file>   Disassemble a bytecode cache file")
	fmt.Println("  pscalvm profile <file>       Run a file and dump its opcode profile")
	fmt.Println("  pscalvm repl                 Start the immediate-mode REPL")
	fmt.Println("  pscalvm version              Show version")
	fmt.Println("  pscalvm help                 Show this help")
}

func loadChunk(filename string) *bytecode.Chunk {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	chunk, err := bytecode.ReadCache(f, bytecode.CurrentVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(1)
	}
	return chunk
}

func runBytecodeFile(filename string) {
	chunk := loadChunk(filename)
	m := vm.New(config.Defaults(), os.Stdout)
	if err := m.Run(chunk); err != nil {
		// m.Run already reported the error through its diag.Reporter
		// (colorized, with an optional stack dump); just set the exit code.
		os.Exit(1)
	}
}

func disassembleFile(filename string) {
	chunk := loadChunk(filename)
	d := bytecode.NewDisassembler()
	text, err := d.Disassemble(chunk, filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error disassembling: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(text)
}

func profileFile(filename string) {
	chunk := loadChunk(filename)
	m := vm.New(config.Defaults(), os.Stdout)
	if err := m.Run(chunk); err != nil {
		os.Exit(1)
	}
	fmt.Println("\nOpcode profile:")
	m.Profile().Dump(os.Stdout)
}
