package vm

import (
	"fmt"
	"strings"

	"github.com/pscalvm/pscalvm/internal/value"
)

// execFormatValue implements FORMAT_VALUE: Pascal's Write(x:width:decimals)
// field formatting (§6.3). The two operand bytes are a signed field width
// (negative means left-justify, matching Pascal's convention) and an
// unsigned decimal-place count used only for Real values. The formatted
// text replaces the original value on the stack as a String, ready for a
// WriteLn/Write builtin to concatenate verbatim.
func (vm *VM) execFormatValue(f *Frame) error {
	width := int(vm.readInt8(f))
	decimals := int(vm.readByte(f))

	v, err := vm.pop()
	if err != nil {
		return err
	}

	var text string
	if v.Kind == value.Real {
		text = fmt.Sprintf("%.*f", decimals, v.AsFloat())
	} else {
		text = v.String()
	}

	text = padField(text, width)
	return vm.push(value.MakeString(text, 0))
}

func padField(text string, width int) string {
	if width == 0 {
		return text
	}
	leftJustify := width < 0
	if leftJustify {
		width = -width
	}
	if len(text) >= width {
		return text
	}
	pad := strings.Repeat(" ", width-len(text))
	if leftJustify {
		return text + pad
	}
	return pad + text
}
