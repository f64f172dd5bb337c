// Package bytecode implements the wire-format bytecode chunk described in
// §3.2/§4.2/§4.6/§6.3: the instruction stream, constant pool, line table,
// inline-cache slots, emit helpers and the disassembler.
package bytecode

// Op is a single VM instruction opcode (§6.3).
type Op byte

const (
	OpConstant Op = iota
	OpConstant16
	OpConst0
	OpConst1
	OpConstTrue
	OpConstFalse
	OpPushImmediateInt8
	OpPop
	OpSwap
	OpDup

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIntDiv
	OpMod
	OpNegate
	OpNot
	OpToBool

	OpEqual
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual

	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr

	OpJump
	OpJumpIfFalse
	OpReturn
	OpHalt
	OpExit

	OpDefineGlobal
	OpDefineGlobal16
	OpGetGlobal
	OpGetGlobal16
	OpSetGlobal
	OpSetGlobal16
	OpGetGlobalCached
	OpGetGlobal16Cached
	OpSetGlobalCached
	OpSetGlobal16Cached
	OpGetGlobalAddress
	OpGetGlobalAddress16

	OpGetLocal
	OpSetLocal
	OpIncLocal
	OpDecLocal
	OpGetLocalAddress
	OpInitLocalFile
	OpInitLocalString
	OpInitLocalPointer
	OpInitLocalArray

	OpGetFieldAddress
	OpGetFieldAddress16
	OpGetFieldOffset
	OpGetFieldOffset16
	OpLoadFieldValue
	OpLoadFieldValue16
	OpLoadFieldValueByName
	OpLoadFieldValueByName16
	OpAllocObject
	OpAllocObject16
	OpInitFieldArray

	OpGetElementAddress
	OpGetElementAddressConst
	OpLoadElementValue
	OpLoadElementValueConst
	OpGetCharAddress
	OpGetCharFromString
	OpSetIndirect
	OpGetIndirect
	OpIn

	OpCall
	OpCallIndirect
	OpProcCallIndirect
	OpCallUserProc
	OpCallBuiltin
	OpCallBuiltinProc
	OpCallMethod
	OpCallHost

	OpGetUpvalue
	OpSetUpvalue
	OpGetUpvalueAddress

	OpFormatValue

	OpThreadCreate
	OpThreadJoin
	OpMutexCreate
	OpRCMutexCreate
	OpMutexLock
	OpMutexUnlock
	OpMutexDestroy

	opCount
)

var opNames = [opCount]string{
	OpConstant:               "CONSTANT",
	OpConstant16:             "CONSTANT16",
	OpConst0:                 "CONST_0",
	OpConst1:                 "CONST_1",
	OpConstTrue:              "CONST_TRUE",
	OpConstFalse:             "CONST_FALSE",
	OpPushImmediateInt8:      "PUSH_IMMEDIATE_INT8",
	OpPop:                    "POP",
	OpSwap:                   "SWAP",
	OpDup:                    "DUP",
	OpAdd:                    "ADD",
	OpSub:                    "SUB",
	OpMul:                    "MUL",
	OpDiv:                    "DIV",
	OpIntDiv:                 "INT_DIV",
	OpMod:                    "MOD",
	OpNegate:                 "NEGATE",
	OpNot:                    "NOT",
	OpToBool:                 "TO_BOOL",
	OpEqual:                  "EQUAL",
	OpNotEqual:               "NOT_EQUAL",
	OpGreater:                "GREATER",
	OpGreaterEqual:           "GREATER_EQUAL",
	OpLess:                   "LESS",
	OpLessEqual:              "LESS_EQUAL",
	OpAnd:                    "AND",
	OpOr:                     "OR",
	OpXor:                    "XOR",
	OpShl:                    "SHL",
	OpShr:                    "SHR",
	OpJump:                   "JUMP",
	OpJumpIfFalse:            "JUMP_IF_FALSE",
	OpReturn:                 "RETURN",
	OpHalt:                   "HALT",
	OpExit:                   "EXIT",
	OpDefineGlobal:           "DEFINE_GLOBAL",
	OpDefineGlobal16:         "DEFINE_GLOBAL16",
	OpGetGlobal:              "GET_GLOBAL",
	OpGetGlobal16:            "GET_GLOBAL16",
	OpSetGlobal:              "SET_GLOBAL",
	OpSetGlobal16:            "SET_GLOBAL16",
	OpGetGlobalCached:        "GET_GLOBAL_CACHED",
	OpGetGlobal16Cached:      "GET_GLOBAL16_CACHED",
	OpSetGlobalCached:        "SET_GLOBAL_CACHED",
	OpSetGlobal16Cached:      "SET_GLOBAL16_CACHED",
	OpGetGlobalAddress:       "GET_GLOBAL_ADDRESS",
	OpGetGlobalAddress16:     "GET_GLOBAL_ADDRESS16",
	OpGetLocal:               "GET_LOCAL",
	OpSetLocal:               "SET_LOCAL",
	OpIncLocal:               "INC_LOCAL",
	OpDecLocal:               "DEC_LOCAL",
	OpGetLocalAddress:        "GET_LOCAL_ADDRESS",
	OpInitLocalFile:          "INIT_LOCAL_FILE",
	OpInitLocalString:        "INIT_LOCAL_STRING",
	OpInitLocalPointer:       "INIT_LOCAL_POINTER",
	OpInitLocalArray:         "INIT_LOCAL_ARRAY",
	OpGetFieldAddress:        "GET_FIELD_ADDRESS",
	OpGetFieldAddress16:      "GET_FIELD_ADDRESS16",
	OpGetFieldOffset:         "GET_FIELD_OFFSET",
	OpGetFieldOffset16:       "GET_FIELD_OFFSET16",
	OpLoadFieldValue:         "LOAD_FIELD_VALUE",
	OpLoadFieldValue16:       "LOAD_FIELD_VALUE16",
	OpLoadFieldValueByName:   "LOAD_FIELD_VALUE_BY_NAME",
	OpLoadFieldValueByName16: "LOAD_FIELD_VALUE_BY_NAME16",
	OpAllocObject:            "ALLOC_OBJECT",
	OpAllocObject16:          "ALLOC_OBJECT16",
	OpInitFieldArray:         "INIT_FIELD_ARRAY",
	OpGetElementAddress:      "GET_ELEMENT_ADDRESS",
	OpGetElementAddressConst: "GET_ELEMENT_ADDRESS_CONST",
	OpLoadElementValue:       "LOAD_ELEMENT_VALUE",
	OpLoadElementValueConst:  "LOAD_ELEMENT_VALUE_CONST",
	OpGetCharAddress:         "GET_CHAR_ADDRESS",
	OpGetCharFromString:      "GET_CHAR_FROM_STRING",
	OpSetIndirect:            "SET_INDIRECT",
	OpGetIndirect:            "GET_INDIRECT",
	OpIn:                     "IN",
	OpCall:                   "CALL",
	OpCallIndirect:           "CALL_INDIRECT",
	OpProcCallIndirect:       "PROC_CALL_INDIRECT",
	OpCallUserProc:           "CALL_USER_PROC",
	OpCallBuiltin:            "CALL_BUILTIN",
	OpCallBuiltinProc:        "CALL_BUILTIN_PROC",
	OpCallMethod:             "CALL_METHOD",
	OpCallHost:               "CALL_HOST",
	OpGetUpvalue:             "GET_UPVALUE",
	OpSetUpvalue:             "SET_UPVALUE",
	OpGetUpvalueAddress:      "GET_UPVALUE_ADDRESS",
	OpFormatValue:            "FORMAT_VALUE",
	OpThreadCreate:           "THREAD_CREATE",
	OpThreadJoin:             "THREAD_JOIN",
	OpMutexCreate:            "MUTEX_CREATE",
	OpRCMutexCreate:          "RCMUTEX_CREATE",
	OpMutexLock:              "MUTEX_LOCK",
	OpMutexUnlock:            "MUTEX_UNLOCK",
	OpMutexDestroy:           "MUTEX_DESTROY",
}

func (op Op) String() string {
	if int(op) < 0 || int(op) >= int(opCount) || opNames[op] == "" {
		return "UNKNOWN"
	}
	return opNames[op]
}

// InlineCacheSlotSize is the number of trailing bytes every global-access
// opcode reserves for the inline cache (§3.2, §4.3).
const InlineCacheSlotSize = 8

// fixedOperandLen gives the operand length (not counting any inline-cache
// slot or variable-length payload) for opcodes whose length is constant.
// Opcodes absent from this map have variable-length payloads computed by
// InstructionLength.
var fixedOperandLen = map[Op]int{
	OpReturn: 0, OpAdd: 0, OpSub: 0, OpMul: 0, OpDiv: 0, OpIntDiv: 0, OpMod: 0,
	OpNegate: 0, OpNot: 0, OpToBool: 0,
	OpEqual: 0, OpNotEqual: 0, OpGreater: 0, OpGreaterEqual: 0, OpLess: 0, OpLessEqual: 0,
	OpAnd: 0, OpOr: 0, OpXor: 0, OpShl: 0, OpShr: 0,
	OpConst0: 0, OpConst1: 0, OpConstTrue: 0, OpConstFalse: 0,
	OpSwap: 0, OpDup: 0, OpPop: 0, OpHalt: 0, OpExit: 0,
	OpGetCharAddress: 0, OpSetIndirect: 0, OpGetIndirect: 0, OpIn: 0, OpGetCharFromString: 0,
	OpThreadJoin: 0, OpMutexCreate: 0, OpRCMutexCreate: 0, OpMutexLock: 0, OpMutexUnlock: 0, OpMutexDestroy: 0,

	OpPushImmediateInt8: 1,

	OpConstant: 1, OpGetLocal: 1, OpSetLocal: 1, OpIncLocal: 1, OpDecLocal: 1, OpGetLocalAddress: 1,
	OpGetFieldAddress: 1, OpGetFieldOffset: 1, OpLoadFieldValue: 1, OpLoadFieldValueByName: 1,
	OpAllocObject: 1, OpGetElementAddress: 1, OpLoadElementValue: 1,
	OpGetUpvalue: 1, OpSetUpvalue: 1, OpGetUpvalueAddress: 1,
	OpCallHost: 1, OpCallIndirect: 1, OpProcCallIndirect: 1, OpGetGlobalAddress: 1,

	OpConstant16: 2, OpGetFieldAddress16: 2, OpGetFieldOffset16: 2, OpLoadFieldValue16: 2,
	OpLoadFieldValueByName16: 2, OpAllocObject16: 2, OpGetGlobalAddress16: 2, OpThreadCreate: 2,
	OpJump: 2, OpJumpIfFalse: 2,

	OpFormatValue: 2,

	OpGetGlobal: 1 + InlineCacheSlotSize, OpSetGlobal: 1 + InlineCacheSlotSize,
	OpGetGlobalCached: 1 + InlineCacheSlotSize, OpSetGlobalCached: 1 + InlineCacheSlotSize,

	OpGetGlobal16: 2 + InlineCacheSlotSize, OpSetGlobal16: 2 + InlineCacheSlotSize,
	OpGetGlobal16Cached: 2 + InlineCacheSlotSize, OpSetGlobal16Cached: 2 + InlineCacheSlotSize,

	OpCallBuiltin: 3, OpCallUserProc: 3,
	OpCallBuiltinProc: 5,
	OpCall:            5,
	OpCallMethod:      2,

	OpGetElementAddressConst: 4, OpLoadElementValueConst: 4,

	OpInitLocalString: 2,
	OpInitLocalPointer: 3,
	OpInitLocalFile:    4,
}
