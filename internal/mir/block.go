package mir

// Block is an ordered instruction list with a unique name within its
// function, owned exclusively by its parent Function. Per spec.md §3,
// a Block stores no predecessor/successor back-pointers of its own —
// those are derived by CFG analysis by walking terminators — but a
// Block IS a Value/User: its BlockRefs-backed Users() list is exactly
// the terminators and PHIs that name it as a destination or incoming
// edge, giving block merging passes a real replace-all-uses-with.
type Block struct {
	base
	Parent       *Function
	Instructions []*Instruction
	Deleted      bool // soft tombstone; swept by Function.SweepDeletedBlocks
}

func NewBlock(name string) *Block {
	return &Block{base: base{name: name, typ: LabelType}}
}

// Terminator returns the block's terminator instruction, or nil for
// an (as-yet) unterminated block.
func (b *Block) Terminator() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// GetPhis returns the contiguous prefix of PHI instructions.
func (b *Block) GetPhis() []*Instruction {
	var out []*Instruction
	for _, inst := range b.Instructions {
		if inst.Op != OpPhi {
			break
		}
		out = append(out, inst)
	}
	return out
}

// NonPhiInstructions returns the instructions after the PHI prefix,
// including the terminator.
func (b *Block) NonPhiInstructions() []*Instruction {
	i := 0
	for i < len(b.Instructions) && b.Instructions[i].Op == OpPhi {
		i++
	}
	return b.Instructions[i:]
}

// RemoveInstruction detaches inst from the block's instruction list
// without touching its operands; callers must ClearOperands first if
// inst is being deleted outright.
func (b *Block) RemoveInstruction(inst *Instruction) {
	for i, x := range b.Instructions {
		if x == inst {
			b.Instructions = append(b.Instructions[:i], b.Instructions[i+1:]...)
			return
		}
	}
}

// InsertBefore inserts inst immediately before mark in the block.
func (b *Block) InsertBefore(mark, inst *Instruction) {
	for i, x := range b.Instructions {
		if x == mark {
			b.Instructions = append(b.Instructions, nil)
			copy(b.Instructions[i+1:], b.Instructions[i:])
			b.Instructions[i] = inst
			inst.Parent = b
			return
		}
	}
}

// InsertBeforeTerminator inserts inst just before the block's
// terminator (or appends, if the block has none yet).
func (b *Block) InsertBeforeTerminator(inst *Instruction) {
	if term := b.Terminator(); term != nil {
		b.InsertBefore(term, inst)
		return
	}
	inst.SetBlock(b, true)
}
