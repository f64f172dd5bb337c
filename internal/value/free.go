package value

// Free releases everything v owns and resets v to the uninitialized Nil
// state, matching §3.1's "Free is idempotent with respect to the slot":
// calling Free twice on the same Value is always safe.
func Free(v *Value) {
	if v == nil {
		return
	}
	switch v.Kind {
	case String:
		v.str = nil
	case Set:
		v.set = nil
	case Array:
		if v.arr != nil {
			for i := range v.arr.Elements {
				Free(&v.arr.Elements[i])
			}
		}
		v.arr = nil
	case Record:
		if v.rec != nil {
			for i := range v.rec.Fields {
				Free(&v.rec.Fields[i].Val)
			}
		}
		v.rec = nil
	case MemoryStream:
		v.mstream = nil
	case File:
		if v.file != nil && v.file.IsOpen && v.file.Handle != nil {
			v.file.Handle.Close()
			v.file.IsOpen = false
		}
		v.file = nil
	case Pointer:
		v.ptr = nil
	case Closure:
		if v.closure != nil {
			v.closure.Env.Release()
		}
		v.closure = nil
	}
	v.Kind = Nil
	v.i, v.f = 0, 0
	v.enumDecl = nil
}

// Dispose frees the pointee of a live Pointer Value and marks the shared
// box dead, so every other Value aliasing the same allocation observes
// IsNil()==true on its next read — see DESIGN.md's resolution of the
// "Dispose aliasing" open design note.
func Dispose(p Value) {
	if p.Kind != Pointer || p.ptr == nil || !p.ptr.alive {
		return
	}
	box := p.ptr
	if box.target != nil {
		Free(box.target)
	}
	box.alive = false
	box.target = nil
}
