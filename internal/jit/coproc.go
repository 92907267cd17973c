package jit

// CoprocReg names one of the sixteen coprocessor registers C0..C15.
type CoprocReg byte

// CoprocCallback is a C ABI routine handling a coprocessor access that
// cannot be compiled to a direct pointer access.
type CoprocCallback struct {
	Fn      uintptr // func(userArg uintptr, arg0, arg1 uint32) uint64
	UserArg uintptr
}

// CoprocAction is what a Coprocessor compiles an access into. Exactly one
// of the concrete kinds below.
type CoprocAction interface {
	isCoprocAction()
}

// CoprocActionCallback routes the access through a host callback.
type CoprocActionCallback struct {
	Callback CoprocCallback
}

// CoprocActionDirectPtr reads or writes a single word at a fixed host
// address.
type CoprocActionDirectPtr struct {
	Ptr uintptr // *uint32
}

// CoprocActionDirectPtrPair reads or writes two words at fixed host
// addresses, low word first.
type CoprocActionDirectPtrPair struct {
	Ptrs [2]uintptr // [2]*uint32
}

func (CoprocActionCallback) isCoprocAction()      {}
func (CoprocActionDirectPtr) isCoprocAction()     {}
func (CoprocActionDirectPtrPair) isCoprocAction() {}

// Coprocessor decides at compile time how each access to its register file
// is emitted. A nil return raises the coprocessor exception path instead.
type Coprocessor interface {
	CompileInternalOperation(two bool, opc1 uint8, crd, crn, crm CoprocReg, opc2 uint8) CoprocAction
	CompileSendOneWord(two bool, opc1 uint8, crn, crm CoprocReg, opc2 uint8) CoprocAction
	CompileSendTwoWords(two bool, opc uint8, crm CoprocReg) CoprocAction
	CompileGetOneWord(two bool, opc1 uint8, crn, crm CoprocReg, opc2 uint8) CoprocAction
	CompileGetTwoWords(two bool, opc uint8, crm CoprocReg) CoprocAction
	CompileLoadWords(two, longTransfer bool, crd CoprocReg, hasOption bool, option uint8) CoprocAction
	CompileStoreWords(two, longTransfer bool, crd CoprocReg, hasOption bool, option uint8) CoprocAction
}
