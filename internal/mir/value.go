package mir

// Value is the closed sum type at the root of the MIR graph: every
// Const, GlobalVariable, Argument, Instruction, Block, and Function is
// a Value. There is no virtual dispatch beyond this interface; callers
// recover the concrete kind with a type switch or a comma-ok type
// assertion (the Go equivalent of spec.md §9's "Value.is<T>()").
type Value interface {
	ValName() string
	ValType() *Type
	// Users returns a snapshot of this Value's user list. Per
	// spec.md §4.2, iteration over users must be safe even while a
	// rewrite is mutating the user list concurrently with the walk;
	// returning a copy gives every caller that "locked snapshot"
	// idiom for free.
	Users() []*Use
	addUser(u *Use)
	removeUser(u *Use)
}

// Use is one operand reference: it names the Value being used (Def)
// and the Instruction doing the using (User), plus the operand slot
// so the back-edge can be rewritten in place. Every Use is registered
// in exactly one place: Def.Users(). Constructing/destroying a Use is
// the only way operand back-links are created or removed.
type Use struct {
	Def  Value
	User *Instruction
	Slot int
}

// base is embedded by every concrete Value kind; it owns the name,
// type, and user list common to all of them.
type base struct {
	name  string
	typ   *Type
	users []*Use
}

func (b *base) ValName() string { return b.name }
func (b *base) ValType() *Type  { return b.typ }

func (b *base) Users() []*Use {
	out := make([]*Use, len(b.users))
	copy(out, b.users)
	return out
}

func (b *base) addUser(u *Use) {
	b.users = append(b.users, u)
}

func (b *base) removeUser(u *Use) {
	for i, x := range b.users {
		if x == u {
			b.users = append(b.users[:i], b.users[i+1:]...)
			return
		}
	}
}

// UseCount reports how many Uses reference v — the "user count" whose
// reaching zero (spec.md §3 "Lifecycle") makes v eligible for deletion.
func UseCount(v Value) int { return len(v.Users()) }

// setOperand creates operand slot i of inst to refer to def, replacing
// whatever was there (if anything) and updating both user lists. Used
// by instruction constructors and by every pass that rewrites operands
// in place (the Go analogue of spec.md's modify_operand).
func setOperand(inst *Instruction, i int, def Value) {
	for len(inst.Operands) <= i {
		inst.Operands = append(inst.Operands, nil)
	}
	if old := inst.Operands[i]; old != nil {
		old.Def.removeUser(old)
	}
	if def == nil {
		inst.Operands[i] = nil
		return
	}
	u := &Use{Def: def, User: inst, Slot: i}
	def.addUser(u)
	inst.Operands[i] = u
}

// appendOperand appends a new operand slot referencing def.
func appendOperand(inst *Instruction, def Value) {
	setOperand(inst, len(inst.Operands), def)
}

// SetOperandAt rewrites operand slot i in place, for passes (e.g.
// StandardizeBinary) that need to reorder specific slots rather than
// replace every occurrence of a value, which is all ModifyOperand can
// express.
func SetOperandAt(inst *Instruction, i int, def Value) {
	setOperand(inst, i, def)
}

// ReplaceAllUsesWith walks old's user list and rewrites every operand
// reference from old to new, transferring user registration; a use in
// a BlockRefs slot is rewritten there when new is a *Block. This is
// spec.md §4.2's replace_by_new_value / RAUW and runs in O(#uses).
func ReplaceAllUsesWith(old, new Value) {
	if old == new {
		return
	}
	for _, u := range old.Users() {
		if nb, ok := new.(*Block); ok && u.Slot < len(u.User.BlockRefs) && u.User.BlockRefs[u.Slot] == u {
			setBlockRef(u.User, u.Slot, nb)
			continue
		}
		setOperand(u.User, u.Slot, new)
	}
}

// Instruction.ClearOperands/Operand/GetOperands/ModifyOperand live in
// instr.go, where they can also account for BlockRefs.
