package ir

// Terminal is the single tail control-flow construct of a block. The
// concrete kinds are matched explicitly by the terminal emitter.
type Terminal interface {
	isTerminal()
}

// TermInterpret hands the next instruction to the interpreter fallback.
type TermInterpret struct {
	Next LocationDescriptor
}

// TermReturnToDispatch returns control to the dispatcher loop.
type TermReturnToDispatch struct{}

// TermLinkBlock jumps to the next block's entry when cycles remain,
// otherwise returns to dispatch. The jump is a patchable site.
type TermLinkBlock struct {
	Next LocationDescriptor
}

// TermLinkBlockFast jumps unconditionally to the next block's entry through
// a patchable site, skipping the cycle check.
type TermLinkBlockFast struct {
	Next LocationDescriptor
}

// TermPopRSBHint performs the return stack buffer lookup for an indirect
// branch.
type TermPopRSBHint struct{}

// TermIf selects between two terminals on an ARM condition.
type TermIf struct {
	Cond Cond
	Then Terminal
	Else Terminal
}

// TermCheckHalt returns to dispatch when a halt was requested, otherwise
// continues with Else.
type TermCheckHalt struct {
	Else Terminal
}

func (TermInterpret) isTerminal()        {}
func (TermReturnToDispatch) isTerminal() {}
func (TermLinkBlock) isTerminal()        {}
func (TermLinkBlockFast) isTerminal()    {}
func (TermPopRSBHint) isTerminal()       {}
func (TermIf) isTerminal()               {}
func (TermCheckHalt) isTerminal()        {}
