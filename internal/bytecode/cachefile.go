package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"github.com/pscalvm/pscalvm/internal/value"
)

// cacheMagic identifies a .pbc (pscal bytecode cache) file.
const cacheMagic = uint32(0x50534356) // "PSCV"

// WriteCache serializes c to w in the on-disk cache format (§6.4): the
// version is stamped first so a stale cache is rejected before any other
// field is even read. The constant pool and instruction stream are
// snappy-compressed — grounded in the wider retrieval pack's use of
// golang/snappy for compact on-disk artifacts — since compiled chunks for
// larger programs are dominated by the code/constants bytes this trims.
func WriteCache(c *Chunk, w io.Writer) error {
	var body bytes.Buffer
	if err := writeConstants(&body, c.Constants); err != nil {
		return fmt.Errorf("write constants: %w", err)
	}
	if err := writeCodeAndLines(&body, c.Code, c.Lines); err != nil {
		return fmt.Errorf("write code: %w", err)
	}

	compressed := snappy.Encode(nil, body.Bytes())

	if err := binary.Write(w, binary.BigEndian, cacheMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, c.Version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

// ReadCache deserializes a Chunk previously written by WriteCache. It
// returns an error wrapping ErrStaleVersion if the embedded version does
// not match wantVersion — the caller (typically CurrentVersion) decides
// whether a mismatch means "recompile" or "refuse to load".
func ReadCache(r io.Reader, wantVersion uint32) (*Chunk, error) {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, err
	}
	if magic != cacheMagic {
		return nil, fmt.Errorf("ReadCache: bad magic 0x%08X", magic)
	}

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, err
	}
	if version != wantVersion {
		return nil, fmt.Errorf("%w: cache is version %d, VM is version %d", ErrStaleVersion, version, wantVersion)
	}

	var compLen uint32
	if err := binary.Read(r, binary.BigEndian, &compLen); err != nil {
		return nil, err
	}
	compressed := make([]byte, compLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("ReadCache: snappy decode: %w", err)
	}

	body := bytes.NewReader(raw)
	constants, err := readConstants(body)
	if err != nil {
		return nil, fmt.Errorf("read constants: %w", err)
	}
	code, lines, err := readCodeAndLines(body)
	if err != nil {
		return nil, fmt.Errorf("read code: %w", err)
	}

	c := New()
	c.Version = version
	c.Code = code
	c.Lines = lines
	for _, v := range constants {
		c.AddConstant(v)
	}
	return c, nil
}

// ErrStaleVersion is returned by ReadCache when the cache file's stamped
// version does not match the running VM's version (§3.2, §6.4).
var ErrStaleVersion = fmt.Errorf("bytecode cache version mismatch")

func writeCodeAndLines(w io.Writer, code []byte, lines []int32) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(code))); err != nil {
		return err
	}
	if _, err := w.Write(code); err != nil {
		return err
	}
	for _, l := range lines {
		if err := binary.Write(w, binary.BigEndian, l); err != nil {
			return err
		}
	}
	return nil
}

func readCodeAndLines(r io.Reader) ([]byte, []int32, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, nil, err
	}
	code := make([]byte, n)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, nil, err
	}
	lines := make([]int32, n)
	for i := range lines {
		if err := binary.Read(r, binary.BigEndian, &lines[i]); err != nil {
			return nil, nil, err
		}
	}
	return code, lines, nil
}

// Constant type tags for the cache file format.
const (
	cacheTagNil byte = iota
	cacheTagVoid
	cacheTagInteger
	cacheTagByte
	cacheTagWord
	cacheTagCardinal
	cacheTagBoolean
	cacheTagChar
	cacheTagReal
	cacheTagString
)

func writeConstants(w io.Writer, constants []value.Value) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(constants))); err != nil {
		return err
	}
	for _, v := range constants {
		if err := writeConstant(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeConstant(w io.Writer, v value.Value) error {
	switch v.Kind {
	case value.Integer:
		return writeTagged(w, cacheTagInteger, v.AsInt())
	case value.Byte:
		return writeTagged(w, cacheTagByte, v.AsInt())
	case value.Word:
		return writeTagged(w, cacheTagWord, v.AsInt())
	case value.Cardinal:
		return writeTagged(w, cacheTagCardinal, v.AsInt())
	case value.Boolean:
		return writeTagged(w, cacheTagBoolean, v.AsInt())
	case value.Char:
		return writeTagged(w, cacheTagChar, v.AsInt())
	case value.Real:
		if err := binary.Write(w, binary.BigEndian, cacheTagReal); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, v.AsFloat())
	case value.String:
		if err := binary.Write(w, binary.BigEndian, cacheTagString); err != nil {
			return err
		}
		s := v.AsString()
		if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
			return err
		}
		_, err := w.Write([]byte(s))
		return err
	case value.Nil:
		return binary.Write(w, binary.BigEndian, cacheTagNil)
	default:
		// Compiled-constant aggregates (Array/Record/...) are rare in the
		// constant pool and out of scope for the on-disk cache format,
		// which §6.4 only requires to round-trip "the fields in §3.2" —
		// the scalar literal kinds a compiler actually pools.
		return binary.Write(w, binary.BigEndian, cacheTagVoid)
	}
}

func writeTagged(w io.Writer, tag byte, i int64) error {
	if err := binary.Write(w, binary.BigEndian, tag); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, i)
}

func readConstants(r io.Reader) ([]value.Value, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	out := make([]value.Value, count)
	for i := range out {
		v, err := readConstant(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readConstant(r io.Reader) (value.Value, error) {
	var tag byte
	if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
		return value.Value{}, err
	}
	switch tag {
	case cacheTagInteger:
		i, err := readInt64(r)
		return value.MakeInt(i), err
	case cacheTagByte:
		i, err := readInt64(r)
		return value.MakeByte(uint8(i)), err
	case cacheTagWord:
		i, err := readInt64(r)
		return value.MakeWord(uint16(i)), err
	case cacheTagCardinal:
		i, err := readInt64(r)
		return value.MakeCardinal(uint32(i)), err
	case cacheTagBoolean:
		i, err := readInt64(r)
		return value.MakeBool(i != 0), err
	case cacheTagChar:
		i, err := readInt64(r)
		return value.MakeChar(byte(i)), err
	case cacheTagReal:
		var f float64
		err := binary.Read(r, binary.BigEndian, &f)
		return value.MakeReal(value.Double, f), err
	case cacheTagString:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return value.Value{}, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return value.Value{}, err
		}
		return value.MakeString(string(buf), 0), nil
	case cacheTagNil:
		return value.MakeNil(), nil
	default:
		return value.MakeVoid(), nil
	}
}

func readInt64(r io.Reader) (int64, error) {
	var i int64
	err := binary.Read(r, binary.BigEndian, &i)
	return i, err
}
