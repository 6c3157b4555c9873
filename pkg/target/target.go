// Package target describes the machine the allocator targets: word size,
// the register file and the calling convention. The description is opaque,
// read-only configuration handed in by the embedder.
package target

// Register is one physical register.
type Register struct {
	Num  int
	Name string
}

// Description is the machine model consumed by register allocation.
type Description struct {
	Name     string
	WordSize int

	// Registers are the allocatable registers in allocation preference
	// order.
	Registers []Register

	CallerSaved []Register
	CalleeSaved []Register

	// ArgRegisters carry the leading call arguments; further arguments
	// arrive in incoming stack slots.
	ArgRegisters []Register

	// IncomingArgSlots is the number of stack slots preoccupied by
	// incoming arguments. These slots are read-only to the allocator.
	IncomingArgSlots int
}

// NumRegisters returns the size of the allocatable register file.
func (d *Description) NumRegisters() int { return len(d.Registers) }

// AMD64 is the default 64-bit description: rsp and rbp are reserved, the
// rest of the integer file is allocatable.
func AMD64() *Description {
	names := []string{
		"rax", "rcx", "rdx", "rbx", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	}
	d := &Description{Name: "amd64", WordSize: 8}
	for i, n := range names {
		d.Registers = append(d.Registers, Register{Num: i, Name: n})
	}
	for _, n := range []string{"rax", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r11"} {
		d.CallerSaved = append(d.CallerSaved, d.byName(n))
	}
	for _, n := range []string{"rbx", "r12", "r13", "r14", "r15"} {
		d.CalleeSaved = append(d.CalleeSaved, d.byName(n))
	}
	for _, n := range []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"} {
		d.ArgRegisters = append(d.ArgRegisters, d.byName(n))
	}
	return d
}

func (d *Description) byName(name string) Register {
	for _, r := range d.Registers {
		if r.Name == name {
			return r
		}
	}
	return Register{Num: -1, Name: name}
}
