package vm

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// Dump is a diagnostic snapshot of a VM taken when a host-level invariant breaks.
type Dump struct {
	Reason string
	// Offset is the current script offset, or -1 when the current context is not a script.
	Offset int64
	Stack  []string
	Frames []FrameDump
}

type FrameDump struct {
	Active    bool
	Offset    uint32
	Context   string
	Registers map[int]string
}

// Snapshot captures stack, frames and non-empty registers. It does not modify the VM.
func (vm *VirtualMachine) Snapshot(reason string) *Dump {
	d := &Dump{Reason: reason, Offset: -1}
	if sc, ok := vm.currentContext.(*ScriptContext); ok {
		d.Offset = int64(sc.InstructionPointer)
	}

	for _, obj := range vm.Stack.Items() {
		d.Stack = append(d.Stack, obj.String())
	}

	for _, frame := range vm.frames {
		fd := FrameDump{
			Active:    frame == vm.currentFrame,
			Offset:    frame.Offset,
			Registers: make(map[int]string),
		}
		if frame.Context != nil {
			fd.Context = frame.Context.Name()
		}
		for i, reg := range frame.Registers[:frame.RegisterCount] {
			if !reg.IsNone() {
				fd.Registers[i] = reg.String()
			}
		}
		d.Frames = append(d.Frames, fd)
	}
	return d
}

func (d *Dump) String() string {
	tree := treeprint.NewWithRoot(d.Reason)
	if d.Offset >= 0 {
		tree.AddMetaNode("CURRENT OFFSET", d.Offset)
	}

	stack := tree.AddBranch("STACK")
	for i := len(d.Stack) - 1; i >= 0; i-- {
		stack.AddNode(d.Stack[i])
	}

	frames := tree.AddBranch("FRAMES")
	for i, fd := range d.Frames {
		branch := frames.AddMetaBranch(i, fmt.Sprintf("%s active=%t offset=%d", fd.Context, fd.Active, fd.Offset))
		for r := 0; r < MaxRegisterCount; r++ {
			if v, ok := fd.Registers[r]; ok {
				branch.AddNode(fmt.Sprintf("R%d = %s", r, v))
			}
		}
	}
	return tree.String()
}
