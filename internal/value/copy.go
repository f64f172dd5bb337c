package value

// Copy returns a deep copy of v per §3.1: String, Set, Array, Record and
// MemoryStream are cloned buffer-and-all; Pointer and Closure are shared
// via reference counting — the copy bumps the shared box's/env's refcount
// instead of cloning the pointee.
func Copy(v Value) Value {
	switch v.Kind {
	case String:
		if v.str == nil {
			return v
		}
		return Value{Kind: String, str: &StringData{
			Buf:       append([]byte(nil), v.str.Buf...),
			MaxLength: v.str.MaxLength,
		}}
	case Set:
		if v.set == nil {
			return v
		}
		return Value{Kind: Set, set: v.set.Clone()}
	case Array:
		if v.arr == nil {
			return v
		}
		return Value{Kind: Array, arr: v.arr.Clone()}
	case Record:
		if v.rec == nil {
			return v
		}
		return Value{Kind: Record, rec: v.rec.Clone()}
	case MemoryStream:
		if v.mstream == nil {
			return v
		}
		return Value{Kind: MemoryStream, mstream: v.mstream.Clone()}
	case File:
		// Files are not duplicated; a copy aliases the same open handle,
		// matching the source's single-owner-per-variable convention for
		// file variables (reassignment transfers, never forks, the handle).
		return v
	case Pointer:
		if v.ptr != nil {
			v.ptr.refs++
		}
		return v
	case Closure:
		if v.closure != nil {
			return Value{Kind: Closure, closure: &ClosureData{
				EntryOffset: v.closure.EntryOffset,
				Env:         v.closure.Env.Retain(),
				Fn:          v.closure.Fn,
			}}
		}
		return v
	default:
		// Numerics, Boolean, Char, Enum, Nil, Void carry no owned storage.
		return v
	}
}

// AssignInto coerces src into a slot already typed as dst's Kind and
// writes the result into *dst, freeing whatever dst previously owned.
// String targets with a fixed MaxLength truncate/pad per §3.1; numeric
// targets widen per the coercion lattice in §4.1.
func AssignInto(dst *Value, src Value) error {
	if dst.Kind == String && dst.str != nil && dst.str.MaxLength > 0 {
		maxLen := dst.str.MaxLength
		Free(dst)
		copied := Copy(src)
		if copied.Kind != String {
			copied = MakeString(copied.String(), 0)
		}
		copied.str.MaxLength = maxLen
		applyFixedLength(copied.str)
		*dst = copied
		return nil
	}
	if dst.Kind.isNumeric() && src.Kind.isNumeric() && dst.Kind != src.Kind {
		coerced, err := coerceNumeric(src, dst.Kind, dst.RealKind)
		if err != nil {
			return err
		}
		Free(dst)
		*dst = coerced
		return nil
	}
	Free(dst)
	*dst = Copy(src)
	return nil
}
