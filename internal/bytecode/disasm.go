package bytecode

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// disasmCacheSize bounds the memoized-instruction-text cache shared by
// every Disassembler; it only needs to be large enough to cover a hot
// debugging loop stepping back and forth over the same few hundred
// offsets, not the whole chunk.
const disasmCacheSize = 1024

// Disassembler formats instructions for debugging and cache verification
// (§4.2). It memoizes the formatted text for (chunk, offset) pairs in an
// LRU cache, since interactive single-stepping re-renders the same
// handful of offsets repeatedly.
type Disassembler struct {
	cache *lru.Cache
}

// NewDisassembler builds a Disassembler with its own memoization cache.
func NewDisassembler() *Disassembler {
	c, err := lru.New(disasmCacheSize)
	if err != nil {
		// lru.New only errors on a non-positive size, which never happens
		// with the constant above.
		panic(err)
	}
	return &Disassembler{cache: c}
}

type cacheKey struct {
	chunk  *Chunk
	offset int
}

// Instruction formats a single instruction's line, mnemonic and operands,
// returning the offset of the following instruction. cachedGlobal, when
// non-nil, is rendered as the currently cached inline-cache pointer value
// in hex, matching §4.2's disassembly contract for global opcodes.
func (d *Disassembler) Instruction(c *Chunk, offset int, cachedGlobal func(idx int) (uintptr, bool)) (string, int, error) {
	key := cacheKey{chunk: c, offset: offset}
	if cached, ok := d.cache.Get(key); ok {
		if entry, ok := cached.(disasmEntry); ok && entry.codeLen == len(c.Code) {
			return entry.text, entry.next, nil
		}
	}

	text, next, err := d.format(c, offset, cachedGlobal)
	if err != nil {
		return "", 0, err
	}
	d.cache.Add(key, disasmEntry{text: text, next: next, codeLen: len(c.Code)})
	return text, next, nil
}

type disasmEntry struct {
	text    string
	next    int
	codeLen int
}

func (d *Disassembler) format(c *Chunk, offset int, cachedGlobal func(idx int) (uintptr, bool)) (string, int, error) {
	n, err := InstructionLength(c, offset)
	if err != nil {
		return "", 0, err
	}
	op := Op(c.Code[offset])
	line := int32(-1)
	if offset < len(c.Lines) {
		line = c.Lines[offset]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%04d %4d %-24s", offset, line, op)

	switch op {
	case OpGetGlobal, OpSetGlobal, OpGetGlobalCached, OpSetGlobalCached:
		idx := int(c.Code[offset+1])
		fmt.Fprintf(&b, "const[%d]", idx)
		appendGlobalCacheText(&b, cachedGlobal, idx)
	case OpGetGlobal16, OpSetGlobal16, OpGetGlobal16Cached, OpSetGlobal16Cached:
		idx := int(ReadUint16(c.Code, offset+1))
		fmt.Fprintf(&b, "const[%d]", idx)
		appendGlobalCacheText(&b, cachedGlobal, idx)
	case OpJump, OpJumpIfFalse:
		rel := int16(ReadUint16(c.Code, offset+1))
		fmt.Fprintf(&b, "-> %d", offset+n+int(rel))
	case OpCall:
		nameIdx := ReadUint16(c.Code, offset+1)
		addr := ReadUint16(c.Code, offset+3)
		arity := c.Code[offset+5]
		fmt.Fprintf(&b, "name[%d] addr=%d arity=%d", nameIdx, addr, arity)
	case OpCallBuiltin, OpCallUserProc:
		nameIdx := ReadUint16(c.Code, offset+1)
		arity := c.Code[offset+3]
		fmt.Fprintf(&b, "name[%d] arity=%d", nameIdx, arity)
	case OpCallBuiltinProc:
		builtinID := ReadUint16(c.Code, offset+1)
		nameIdx := ReadUint16(c.Code, offset+3)
		arity := c.Code[offset+5]
		fmt.Fprintf(&b, "id=%d name[%d] arity=%d", builtinID, nameIdx, arity)
	case OpCallMethod:
		fmt.Fprintf(&b, "method[%d] arity=%d", c.Code[offset+1], c.Code[offset+2])
	case OpFormatValue:
		width := c.Code[offset+1]
		precision := ReadInt8(c.Code, offset+2)
		fmt.Fprintf(&b, "width=%d precision=%d", width, precision)
	case OpConstant:
		idx := int(c.Code[offset+1])
		fmt.Fprintf(&b, "const[%d] = %s", idx, constText(c, idx))
	case OpConstant16:
		idx := int(ReadUint16(c.Code, offset+1))
		fmt.Fprintf(&b, "const[%d] = %s", idx, constText(c, idx))
	default:
		if opLen, ok := fixedOperandLen[op]; ok && opLen > 0 {
			fmt.Fprintf(&b, "%v", c.Code[offset+1:offset+1+opLen])
		}
	}

	return b.String(), offset + n, nil
}

func constText(c *Chunk, idx int) string {
	if idx < 0 || idx >= len(c.Constants) {
		return "<?>"
	}
	return c.Constants[idx].String()
}

func appendGlobalCacheText(b *strings.Builder, cachedGlobal func(idx int) (uintptr, bool), idx int) {
	if cachedGlobal == nil {
		return
	}
	if ptr, ok := cachedGlobal(idx); ok {
		fmt.Fprintf(b, "  ; ic=0x%016x", ptr)
	} else {
		fmt.Fprintf(b, "  ; ic=<unresolved>")
	}
}

// Disassemble formats every instruction in the chunk, one per line.
func (d *Disassembler) Disassemble(c *Chunk, name string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	offset := 0
	for offset < len(c.Code) {
		text, next, err := d.Instruction(c, offset, nil)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		b.WriteByte('\n')
		offset = next
	}
	return b.String(), nil
}
