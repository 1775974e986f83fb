package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by feature for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Core (0x00-0x07) - always present
	// ========================================================================

	OpUnreachable Opcode = 0x00 // Fault unconditionally
	OpNoop        Opcode = 0x01 // No operation
	OpRet         Opcode = 0x02 // Return to caller, halt in the outermost frame
	OpRetz        Opcode = 0x03 // R = 0; ret (derived)

	// ========================================================================
	// Control flow (0x08-0x0F)
	// ========================================================================

	OpJmp   Opcode = 0x08 // Jump: OpJmp <target:u32>
	OpJz    Opcode = 0x09 // Jump if A is integer zero: OpJz <target:u32>
	OpJnz   Opcode = 0x0A // Jump if A is not integer zero: OpJnz <target:u32>
	OpJerr  Opcode = 0x0B // Jump if A is an error value: OpJerr <target:u32>
	OpCall  Opcode = 0x0C // Call function: OpCall <target:u32>
	OpCallN Opcode = 0x0D // Call copying argc arguments: OpCallN <argc:u8> <target:u32>

	// ========================================================================
	// Registers (0x10-0x2F)
	// ========================================================================

	OpLoadA0 Opcode = 0x10 // A = 0
	OpLoadA1 Opcode = 0x11 // A = 1
	OpLoadA  Opcode = 0x12 // A = imm: OpLoadA <imm:u64>
	OpLoadAF Opcode = 0x13 // A = imm: OpLoadAF <imm:f64>
	OpLoadB0 Opcode = 0x14
	OpLoadB1 Opcode = 0x15
	OpLoadB  Opcode = 0x16
	OpLoadBF Opcode = 0x17
	OpLoadR0 Opcode = 0x18
	OpLoadR1 Opcode = 0x19
	OpLoadR  Opcode = 0x1A
	OpLoadRF Opcode = 0x1B
	OpSwapAB Opcode = 0x1C // A <-> B
	OpSwapAR Opcode = 0x1D // A <-> R
	OpSwapBR Opcode = 0x1E // B <-> R
	OpCopyAB Opcode = 0x20 // B = A
	OpCopyAR Opcode = 0x21 // R = A
	OpCopyBA Opcode = 0x22 // A = B
	OpCopyBR Opcode = 0x23 // R = B
	OpCopyRA Opcode = 0x24 // A = R
	OpCopyRB Opcode = 0x25 // B = R

	// ========================================================================
	// Stack (0x30-0x4F) - all operations are bounded by the frame base
	// ========================================================================

	OpPushA     Opcode = 0x30
	OpPushB     Opcode = 0x31
	OpPushR     Opcode = 0x32
	OpPop       Opcode = 0x33
	OpPopIntoA  Opcode = 0x34 // top_into_a; pop (derived)
	OpPopIntoB  Opcode = 0x35 // top_into_b; pop (derived)
	OpPopIntoR  Opcode = 0x36 // top_into_r; pop (derived)
	OpTopIntoA  Opcode = 0x37
	OpTopIntoB  Opcode = 0x38
	OpTopIntoR  Opcode = 0x39
	OpSwap      Opcode = 0x3A // Swap the top two slots of the frame
	OpSwapA     Opcode = 0x3B // A <-> top
	OpSwapB     Opcode = 0x3C // B <-> top
	OpSwapR     Opcode = 0x3D // R <-> top
	OpDuplicate Opcode = 0x3E // Push a copy of the top slot
	OpFrameSize Opcode = 0x3F // A = number of slots in the current frame
	OpClear     Opcode = 0x40 // Truncate the stack to the frame base

	// ========================================================================
	// Math (0x50-0x8F) - operands in A and B, result in A
	// ========================================================================

	OpAdd   Opcode = 0x50
	OpSub   Opcode = 0x51
	OpMul   Opcode = 0x52
	OpDiv   Opcode = 0x53
	OpRem   Opcode = 0x54
	OpAnd   Opcode = 0x55
	OpOr    Opcode = 0x56
	OpXor   Opcode = 0x57
	OpShl   Opcode = 0x58 // Shift left by signed B
	OpShz   Opcode = 0x59 // Shift right zero-filling by signed B
	OpShs   Opcode = 0x5A // Shift right sign-extending by signed B
	OpEq    Opcode = 0x5B
	OpNe    Opcode = 0x5C
	OpLt    Opcode = 0x5D
	OpLe    Opcode = 0x5E
	OpGt    Opcode = 0x5F
	OpGe    Opcode = 0x60
	OpMin   Opcode = 0x61
	OpMax   Opcode = 0x62
	OpPow   Opcode = 0x63
	OpAtan2 Opcode = 0x64
	OpHypot Opcode = 0x65
	OpLogN  Opcode = 0x66 // A = log base B of A
	OpNRoot Opcode = 0x67 // A = B-th root of A

	OpNeg    Opcode = 0x68
	OpNot    Opcode = 0x69 // Bitwise complement
	OpAbs    Opcode = 0x6A
	OpSqrt   Opcode = 0x6B
	OpCbrt   Opcode = 0x6C
	OpExp    Opcode = 0x6D
	OpLn     Opcode = 0x6E
	OpLog2   Opcode = 0x6F
	OpLog10  Opcode = 0x70
	OpSin    Opcode = 0x71
	OpCos    Opcode = 0x72
	OpTan    Opcode = 0x73
	OpAsin   Opcode = 0x74
	OpAcos   Opcode = 0x75
	OpAtan   Opcode = 0x76
	OpSinh   Opcode = 0x77
	OpCosh   Opcode = 0x78
	OpTanh   Opcode = 0x79
	OpAsinh  Opcode = 0x7A
	OpAcosh  Opcode = 0x7B
	OpAtanh  Opcode = 0x7C
	OpFloor  Opcode = 0x7D
	OpCeil   Opcode = 0x7E
	OpRound  Opcode = 0x7F
	OpTrunc  Opcode = 0x80
	OpSign   Opcode = 0x81
	OpClz    Opcode = 0x82
	OpPopcnt Opcode = 0x83
	OpItof   Opcode = 0x84
	OpFtoi   Opcode = 0x85
	OpRand   Opcode = 0x86 // A = uniform float in [0, 1)
	OpInc    Opcode = 0x87 // A = A + 1 (derived)
	OpDec    Opcode = 0x88 // A = A - 1 (derived)

	// ========================================================================
	// Objects and containers (0x90-0xBF)
	// ========================================================================

	OpAlloc      Opcode = 0x90 // A = new instance: OpAlloc <type:u32>
	OpProp0      Opcode = 0x91 // A = B.0
	OpProp1      Opcode = 0x92
	OpProp2      Opcode = 0x93
	OpProp3      Opcode = 0x94
	OpProp       Opcode = 0x95 // A = B.n: OpProp <field:u32>
	OpStore0     Opcode = 0x96 // B.0 = A
	OpStore1     Opcode = 0x97
	OpStore2     Opcode = 0x98
	OpStore3     Opcode = 0x99
	OpStore      Opcode = 0x9A // B.n = A: OpStore <field:u32>
	OpIs         Opcode = 0x9B // A = A has type: OpIs <type:u32>
	OpCastEq     Opcode = 0x9C // Retag A to a same-layout type: OpCastEq <type:u32>
	OpTypeEq     Opcode = 0x9D // A = same type(A, B)
	OpIsBuiltin  Opcode = 0x9E
	OpFieldCount Opcode = 0x9F // A = field count of B's type
	OpNewWArr    Opcode = 0xA0 // A = wide array of A slots
	OpNewWVec    Opcode = 0xA1
	OpNewSArr    Opcode = 0xA2 // A = small array of A elements typed like B
	OpNewSVec    Opcode = 0xA3 // A = small vector typed like B
	OpLen        Opcode = 0xA4 // A = len(B)
	OpGet        Opcode = 0xA5 // A = B[A]
	OpPut        Opcode = 0xA6 // B[A] = R
	OpVPush      Opcode = 0xA7 // push A onto B
	OpVPop       Opcode = 0xA8 // A = pop B
	OpVRemove    Opcode = 0xA9 // A = swap_remove(B, A)
	OpVClear     Opcode = 0xAA
	OpGC         Opcode = 0xAB // Collect unreachable heap cells
	OpHeapCount  Opcode = 0xAC // A = live heap cells

	// ========================================================================
	// Strings (0xC0-0xCF)
	// ========================================================================

	OpStrNew        Opcode = 0xC0
	OpStrConst      Opcode = 0xC1 // A = copy of constant: OpStrConst <index:u32>
	OpStrCat        Opcode = 0xC2 // A = A ++ B
	OpStrEq         Opcode = 0xC3
	OpStrCmp        Opcode = 0xC4
	OpStrSlice      Opcode = 0xC5 // A = B[A:R]
	OpStrFromInt    Opcode = 0xC6
	OpStrFromFloat  Opcode = 0xC7
	OpStrParseInt   Opcode = 0xC8
	OpStrParseFloat Opcode = 0xC9
	OpStrFind       Opcode = 0xCA // A = index of A in B

	// ========================================================================
	// Standard IO (0xD0-0xDF)
	// ========================================================================

	OpArgs       Opcode = 0xD0
	OpOutWrite   Opcode = 0xD1
	OpOutWriteln Opcode = 0xD2
	OpErrWrite   Opcode = 0xD3
	OpErrWriteln Opcode = 0xD4
	OpInReadLine Opcode = 0xD5
	OpInReadAll  Opcode = 0xD6

	// ========================================================================
	// File IO (0xE0-0xFF) - path in A, payload or destination in B
	// ========================================================================

	OpFileExists    Opcode = 0xE0
	OpIsFile        Opcode = 0xE1
	OpIsDir         Opcode = 0xE2
	OpFileRead      Opcode = 0xE3
	OpFileWrite     Opcode = 0xE4
	OpFileAppend    Opcode = 0xE5
	OpFileCreate    Opcode = 0xE6
	OpDirCreate     Opcode = 0xE7
	OpFileDelete    Opcode = 0xE8
	OpFileMove      Opcode = 0xE9
	OpFileCopy      Opcode = 0xEA
	OpFileSize      Opcode = 0xEB
	OpFileCreated   Opcode = 0xEC
	OpFileModified  Opcode = 0xED
	OpFileHidden    Opcode = 0xEE
	OpFileTemporary Opcode = 0xEF
	OpFileMarkTemp  Opcode = 0xF0
	OpFileMarkPerm  Opcode = 0xF1
	OpDirOpen       Opcode = 0xF2 // A = cursor over directory A
	OpDirStep       Opcode = 0xF3 // A = next entry name of cursor B
	OpDirClose      Opcode = 0xF4 // Close cursor B
)

// OperandFormat describes the immediate bytes that follow an opcode.
// All immediates are little-endian.
type OperandFormat uint8

const (
	OperandNone   OperandFormat = iota
	OperandU64                  // integer immediate
	OperandF64                  // IEEE-754 bits
	OperandTarget               // absolute code offset (u32)
	OperandCall                 // argc (u8) then absolute code offset (u32)
	OperandType                 // type table index (u32)
	OperandField                // field index (u32)
	OperandString               // string table index (u32)
)

// Len returns the number of operand bytes for the format.
func (f OperandFormat) Len() int {
	switch f {
	case OperandU64, OperandF64:
		return 8
	case OperandTarget, OperandType, OperandField, OperandString:
		return 4
	case OperandCall:
		return 5
	default:
		return 0
	}
}

// TargetOffset returns the position of the absolute code offset within the
// operand bytes, or -1 if the format carries none.
func (f OperandFormat) TargetOffset() int {
	switch f {
	case OperandTarget:
		return 0
	case OperandCall:
		return 1
	default:
		return -1
	}
}

// OpcodeInfo provides metadata about each opcode for the assembler,
// disassembler and machine.
type OpcodeInfo struct {
	Name      string        // Assembly mnemonic
	Feature   Feature       // Feature the instruction belongs to
	Core      bool          // Present regardless of negotiated features
	Format    OperandFormat // Immediate layout
	Expansion []Opcode      // Primitive sequence for derived instructions
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Core
	OpUnreachable: {Name: "unreachable", Core: true},
	OpNoop:        {Name: "noop", Core: true},
	OpRet:         {Name: "ret", Core: true},
	OpRetz:        {Name: "retz", Core: true, Expansion: []Opcode{OpLoadR0, OpRet}},

	// Control flow
	OpJmp:   {Name: "jmp", Feature: FeatureControlFlow, Format: OperandTarget},
	OpJz:    {Name: "jz", Feature: FeatureControlFlow, Format: OperandTarget},
	OpJnz:   {Name: "jnz", Feature: FeatureControlFlow, Format: OperandTarget},
	OpJerr:  {Name: "jerr", Feature: FeatureControlFlow, Format: OperandTarget},
	OpCall:  {Name: "call", Feature: FeatureControlFlow, Format: OperandTarget},
	OpCallN: {Name: "calln", Feature: FeatureControlFlow, Format: OperandCall},

	// Registers
	OpLoadA0: {Name: "load_a0", Feature: FeatureRegisters},
	OpLoadA1: {Name: "load_a1", Feature: FeatureRegisters},
	OpLoadA:  {Name: "load_a", Feature: FeatureRegisters, Format: OperandU64},
	OpLoadAF: {Name: "load_af", Feature: FeatureRegisters, Format: OperandF64},
	OpLoadB0: {Name: "load_b0", Feature: FeatureRegisters},
	OpLoadB1: {Name: "load_b1", Feature: FeatureRegisters},
	OpLoadB:  {Name: "load_b", Feature: FeatureRegisters, Format: OperandU64},
	OpLoadBF: {Name: "load_bf", Feature: FeatureRegisters, Format: OperandF64},
	OpLoadR0: {Name: "load_r0", Feature: FeatureRegisters},
	OpLoadR1: {Name: "load_r1", Feature: FeatureRegisters},
	OpLoadR:  {Name: "load_r", Feature: FeatureRegisters, Format: OperandU64},
	OpLoadRF: {Name: "load_rf", Feature: FeatureRegisters, Format: OperandF64},
	OpSwapAB: {Name: "swap_ab", Feature: FeatureRegisters},
	OpSwapAR: {Name: "swap_ar", Feature: FeatureRegisters},
	OpSwapBR: {Name: "swap_br", Feature: FeatureRegisters},
	OpCopyAB: {Name: "copy_ab", Feature: FeatureRegisters},
	OpCopyAR: {Name: "copy_ar", Feature: FeatureRegisters},
	OpCopyBA: {Name: "copy_ba", Feature: FeatureRegisters},
	OpCopyBR: {Name: "copy_br", Feature: FeatureRegisters},
	OpCopyRA: {Name: "copy_ra", Feature: FeatureRegisters},
	OpCopyRB: {Name: "copy_rb", Feature: FeatureRegisters},

	// Stack
	OpPushA:     {Name: "push_a", Feature: FeatureStack},
	OpPushB:     {Name: "push_b", Feature: FeatureStack},
	OpPushR:     {Name: "push_r", Feature: FeatureStack},
	OpPop:       {Name: "pop", Feature: FeatureStack},
	OpPopIntoA:  {Name: "pop_into_a", Feature: FeatureStack, Expansion: []Opcode{OpTopIntoA, OpPop}},
	OpPopIntoB:  {Name: "pop_into_b", Feature: FeatureStack, Expansion: []Opcode{OpTopIntoB, OpPop}},
	OpPopIntoR:  {Name: "pop_into_r", Feature: FeatureStack, Expansion: []Opcode{OpTopIntoR, OpPop}},
	OpTopIntoA:  {Name: "top_into_a", Feature: FeatureStack},
	OpTopIntoB:  {Name: "top_into_b", Feature: FeatureStack},
	OpTopIntoR:  {Name: "top_into_r", Feature: FeatureStack},
	OpSwap:      {Name: "swap", Feature: FeatureStack},
	OpSwapA:     {Name: "swap_a", Feature: FeatureStack},
	OpSwapB:     {Name: "swap_b", Feature: FeatureStack},
	OpSwapR:     {Name: "swap_r", Feature: FeatureStack},
	OpDuplicate: {Name: "duplicate", Feature: FeatureStack},
	OpFrameSize: {Name: "frame_size", Feature: FeatureStack},
	OpClear:     {Name: "clear", Feature: FeatureStack},

	// Math
	OpAdd:    {Name: "add", Feature: FeatureMath},
	OpSub:    {Name: "sub", Feature: FeatureMath},
	OpMul:    {Name: "mul", Feature: FeatureMath},
	OpDiv:    {Name: "div", Feature: FeatureMath},
	OpRem:    {Name: "rem", Feature: FeatureMath},
	OpAnd:    {Name: "and", Feature: FeatureMath},
	OpOr:     {Name: "or", Feature: FeatureMath},
	OpXor:    {Name: "xor", Feature: FeatureMath},
	OpShl:    {Name: "shl", Feature: FeatureMath},
	OpShz:    {Name: "shz", Feature: FeatureMath},
	OpShs:    {Name: "shs", Feature: FeatureMath},
	OpEq:     {Name: "eq", Feature: FeatureMath},
	OpNe:     {Name: "ne", Feature: FeatureMath},
	OpLt:     {Name: "lt", Feature: FeatureMath},
	OpLe:     {Name: "le", Feature: FeatureMath},
	OpGt:     {Name: "gt", Feature: FeatureMath},
	OpGe:     {Name: "ge", Feature: FeatureMath},
	OpMin:    {Name: "min", Feature: FeatureMath},
	OpMax:    {Name: "max", Feature: FeatureMath},
	OpPow:    {Name: "pow", Feature: FeatureMath},
	OpAtan2:  {Name: "atan2", Feature: FeatureMath},
	OpHypot:  {Name: "hypot", Feature: FeatureMath},
	OpLogN:   {Name: "logn", Feature: FeatureMath},
	OpNRoot:  {Name: "nroot", Feature: FeatureMath},
	OpNeg:    {Name: "neg", Feature: FeatureMath},
	OpNot:    {Name: "not", Feature: FeatureMath},
	OpAbs:    {Name: "abs", Feature: FeatureMath},
	OpSqrt:   {Name: "sqrt", Feature: FeatureMath},
	OpCbrt:   {Name: "cbrt", Feature: FeatureMath},
	OpExp:    {Name: "exp", Feature: FeatureMath},
	OpLn:     {Name: "ln", Feature: FeatureMath},
	OpLog2:   {Name: "log2", Feature: FeatureMath},
	OpLog10:  {Name: "log10", Feature: FeatureMath},
	OpSin:    {Name: "sin", Feature: FeatureMath},
	OpCos:    {Name: "cos", Feature: FeatureMath},
	OpTan:    {Name: "tan", Feature: FeatureMath},
	OpAsin:   {Name: "asin", Feature: FeatureMath},
	OpAcos:   {Name: "acos", Feature: FeatureMath},
	OpAtan:   {Name: "atan", Feature: FeatureMath},
	OpSinh:   {Name: "sinh", Feature: FeatureMath},
	OpCosh:   {Name: "cosh", Feature: FeatureMath},
	OpTanh:   {Name: "tanh", Feature: FeatureMath},
	OpAsinh:  {Name: "asinh", Feature: FeatureMath},
	OpAcosh:  {Name: "acosh", Feature: FeatureMath},
	OpAtanh:  {Name: "atanh", Feature: FeatureMath},
	OpFloor:  {Name: "floor", Feature: FeatureMath},
	OpCeil:   {Name: "ceil", Feature: FeatureMath},
	OpRound:  {Name: "round", Feature: FeatureMath},
	OpTrunc:  {Name: "trunc", Feature: FeatureMath},
	OpSign:   {Name: "sign", Feature: FeatureMath},
	OpClz:    {Name: "clz", Feature: FeatureMath},
	OpPopcnt: {Name: "popcnt", Feature: FeatureMath},
	OpItof:   {Name: "itof", Feature: FeatureMath},
	OpFtoi:   {Name: "ftoi", Feature: FeatureMath},
	OpRand:   {Name: "rand", Feature: FeatureMath},
	// The inc and dec expansions borrow one stack slot to save B, so the
	// expanded form overflows a full stack where the native form does not.
	OpInc:    {Name: "inc", Feature: FeatureMath, Expansion: []Opcode{OpPushB, OpLoadB1, OpAdd, OpTopIntoB, OpPop}},
	OpDec:    {Name: "dec", Feature: FeatureMath, Expansion: []Opcode{OpPushB, OpLoadB1, OpSub, OpTopIntoB, OpPop}},

	// Objects and containers
	OpAlloc:      {Name: "alloc", Feature: FeatureObjects, Format: OperandType},
	OpProp0:      {Name: "prop0", Feature: FeatureObjects},
	OpProp1:      {Name: "prop1", Feature: FeatureObjects},
	OpProp2:      {Name: "prop2", Feature: FeatureObjects},
	OpProp3:      {Name: "prop3", Feature: FeatureObjects},
	OpProp:       {Name: "prop", Feature: FeatureObjects, Format: OperandField},
	OpStore0:     {Name: "store0", Feature: FeatureObjects},
	OpStore1:     {Name: "store1", Feature: FeatureObjects},
	OpStore2:     {Name: "store2", Feature: FeatureObjects},
	OpStore3:     {Name: "store3", Feature: FeatureObjects},
	OpStore:      {Name: "store", Feature: FeatureObjects, Format: OperandField},
	OpIs:         {Name: "is", Feature: FeatureObjects, Format: OperandType},
	OpCastEq:     {Name: "casteq", Feature: FeatureObjects, Format: OperandType},
	OpTypeEq:     {Name: "typeeq", Feature: FeatureObjects},
	OpIsBuiltin:  {Name: "is_builtin", Feature: FeatureObjects},
	OpFieldCount: {Name: "field_count", Feature: FeatureObjects},
	OpNewWArr:    {Name: "new_warr", Feature: FeatureObjects},
	OpNewWVec:    {Name: "new_wvec", Feature: FeatureObjects},
	OpNewSArr:    {Name: "new_sarr", Feature: FeatureObjects},
	OpNewSVec:    {Name: "new_svec", Feature: FeatureObjects},
	OpLen:        {Name: "len", Feature: FeatureObjects},
	OpGet:        {Name: "get", Feature: FeatureObjects},
	OpPut:        {Name: "put", Feature: FeatureObjects},
	OpVPush:      {Name: "vpush", Feature: FeatureObjects},
	OpVPop:       {Name: "vpop", Feature: FeatureObjects},
	OpVRemove:    {Name: "vremove", Feature: FeatureObjects},
	OpVClear:     {Name: "vclear", Feature: FeatureObjects},
	OpGC:         {Name: "gc", Feature: FeatureObjects},
	OpHeapCount:  {Name: "heap_count", Feature: FeatureObjects},

	// Strings
	OpStrNew:        {Name: "str_new", Feature: FeatureStrings},
	OpStrConst:      {Name: "str_const", Feature: FeatureStrings, Format: OperandString},
	OpStrCat:        {Name: "str_cat", Feature: FeatureStrings},
	OpStrEq:         {Name: "str_eq", Feature: FeatureStrings},
	OpStrCmp:        {Name: "str_cmp", Feature: FeatureStrings},
	OpStrSlice:      {Name: "str_slice", Feature: FeatureStrings},
	OpStrFromInt:    {Name: "str_from_int", Feature: FeatureStrings},
	OpStrFromFloat:  {Name: "str_from_float", Feature: FeatureStrings},
	OpStrParseInt:   {Name: "str_parse_int", Feature: FeatureStrings},
	OpStrParseFloat: {Name: "str_parse_float", Feature: FeatureStrings},
	OpStrFind:       {Name: "str_find", Feature: FeatureStrings},

	// Standard IO
	OpArgs:       {Name: "args", Feature: FeatureStdIO},
	OpOutWrite:   {Name: "out_write", Feature: FeatureStdIO},
	OpOutWriteln: {Name: "out_writeln", Feature: FeatureStdIO},
	OpErrWrite:   {Name: "err_write", Feature: FeatureStdIO},
	OpErrWriteln: {Name: "err_writeln", Feature: FeatureStdIO},
	OpInReadLine: {Name: "in_readline", Feature: FeatureStdIO},
	OpInReadAll:  {Name: "in_readall", Feature: FeatureStdIO},

	// File IO
	OpFileExists:    {Name: "file_exists", Feature: FeatureFileIO},
	OpIsFile:        {Name: "is_file", Feature: FeatureFileIO},
	OpIsDir:         {Name: "is_dir", Feature: FeatureFileIO},
	OpFileRead:      {Name: "file_read", Feature: FeatureFileIO},
	OpFileWrite:     {Name: "file_write", Feature: FeatureFileIO},
	OpFileAppend:    {Name: "file_append", Feature: FeatureFileIO},
	OpFileCreate:    {Name: "file_create", Feature: FeatureFileIO},
	OpDirCreate:     {Name: "dir_create", Feature: FeatureFileIO},
	OpFileDelete:    {Name: "file_delete", Feature: FeatureFileIO},
	OpFileMove:      {Name: "file_move", Feature: FeatureFileIO},
	OpFileCopy:      {Name: "file_copy", Feature: FeatureFileIO},
	OpFileSize:      {Name: "file_size", Feature: FeatureFileIO},
	OpFileCreated:   {Name: "file_created", Feature: FeatureFileIO},
	OpFileModified:  {Name: "file_modified", Feature: FeatureFileIO},
	OpFileHidden:    {Name: "file_hidden", Feature: FeatureFileIO},
	OpFileTemporary: {Name: "file_temporary", Feature: FeatureFileIO},
	OpFileMarkTemp:  {Name: "file_mark_temp", Feature: FeatureFileIO},
	OpFileMarkPerm:  {Name: "file_mark_perm", Feature: FeatureFileIO},
	OpDirOpen:       {Name: "dir_open", Feature: FeatureFileIO},
	OpDirStep:       {Name: "dir_step", Feature: FeatureFileIO},
	OpDirClose:      {Name: "dir_close", Feature: FeatureFileIO},
}

// opcodesByName is the reverse of opcodeInfoTable, used by the assembler.
var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN(0xNN)" if the opcode is not defined.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// Lookup returns the opcode for an assembly mnemonic.
func Lookup(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// String returns the assembly mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Defined reports whether the opcode is part of the instruction set.
func (op Opcode) Defined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).Format.Len()
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode carries an absolute code offset.
func (op Opcode) IsJump() bool {
	return GetOpcodeInfo(op).Format.TargetOffset() >= 0
}

// IsDerived returns true if this opcode has a primitive expansion.
func (op Opcode) IsDerived() bool {
	return len(GetOpcodeInfo(op).Expansion) > 0
}

// Enabled reports whether the opcode is dispatchable under the given
// feature set.
func (op Opcode) Enabled(fs FeatureSet) bool {
	info, ok := opcodeInfoTable[op]
	if !ok {
		return false
	}
	return info.Core || fs.Has(info.Feature)
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
