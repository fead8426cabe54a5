// Package bytecode defines the instruction format and opcode set executed
// by the VM (spec §3 "Compiled program", §4.4 "Opcode set and semantics").
package bytecode

import (
	"fmt"

	"github.com/GhostKellz/ghostlang-sub000/value"
)

// Opcode identifies the operation an Instruction performs.
type Opcode byte

const (
	OpNop Opcode = iota

	// Data movement
	OpLoadConst  // dst, k          reg[dst] = constants[k]
	OpLoadLocal  // dst, li         reg[dst] = locals[li]
	OpStoreLocal // dst, li         locals[li] = reg[dst]
	OpLoadGlobal // dst, name_k     locals-by-name, then run globals, then engine globals
	OpStoreGlobal // src, name_k    update local if present, else existing global, else new script-scoped global (never a new engine global)
	OpDeclareLocal // name_k, src   push new named local initialized from reg[src]

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod

	// String
	OpConcat

	// Comparison / logical
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLogicalAnd
	OpLogicalOr
	OpLogicalNot

	// Control flow
	OpJump        // target
	OpJumpIfFalse // cond_reg, target
	OpJumpIfTrue  // cond_reg, target
	OpRet         // src (optional; extra==0 means "no operand")

	// Calls
	OpCall        // name_k, arg_start, arg_count
	OpCallClosure // cls_reg, arg_start, arg_count

	// Tables / arrays
	OpNewTable
	OpGetTable  // dst, t, key_reg
	OpSetTable  // t, key_reg, val_reg
	OpNewArray
	OpArrayGet  // dst, a, idx_reg
	OpArraySet  // a, idx_reg, val_reg
	OpArrayPush // a, val_reg
	OpArrayLen  // dst, a

	// Loops
	OpForInit   // iter, start
	OpForLoop   // iter, end, target
	OpForInInit // t, cursor_reg     cursor_reg = 0
	OpForInNext // key_dst, val_dst, t; extra = cursor_reg (key_dst/val_dst = nil when exhausted; no jump)

	// Closures
	OpClosure // dst, fn_id, upval_count

	// String intrinsics
	OpStrLen
	OpSubstr
	OpStrUpper
	OpStrLower
	OpStrFind

	// Module
	OpRequireModule // dst, path_k

	opcodeCount
)

var names = [...]string{
	OpNop:          "nop",
	OpLoadConst:    "load_const",
	OpLoadLocal:    "load_local",
	OpStoreLocal:   "store_local",
	OpLoadGlobal:   "load_global",
	OpStoreGlobal:  "store_global",
	OpDeclareLocal: "declare_local",
	OpAdd:          "add",
	OpSub:          "sub",
	OpMul:          "mul",
	OpDiv:          "div",
	OpMod:          "mod",
	OpConcat:       "concat",
	OpEq:           "eq",
	OpNe:           "ne",
	OpLt:           "lt",
	OpLe:           "le",
	OpGt:           "gt",
	OpGe:           "ge",
	OpLogicalAnd:   "logical_and",
	OpLogicalOr:    "logical_or",
	OpLogicalNot:   "logical_not",
	OpJump:         "jump",
	OpJumpIfFalse:  "jump_if_false",
	OpJumpIfTrue:   "jump_if_true",
	OpRet:          "ret",
	OpCall:         "call",
	OpCallClosure:  "call_closure",
	OpNewTable:     "new_table",
	OpGetTable:     "get_table",
	OpSetTable:     "set_table",
	OpNewArray:     "new_array",
	OpArrayGet:     "array_get",
	OpArraySet:     "array_set",
	OpArrayPush:    "array_push",
	OpArrayLen:     "array_len",
	OpForInit:      "for_init",
	OpForLoop:      "for_loop",
	OpForInInit:    "for_in_init",
	OpForInNext:    "for_in_next",
	OpClosure:      "closure",
	OpStrLen:       "strlen",
	OpSubstr:       "substr",
	OpStrUpper:     "str_upper",
	OpStrLower:     "str_lower",
	OpStrFind:      "str_find",
	OpRequireModule: "require_module",
}

func (op Opcode) String() string {
	if int(op) < len(names) && names[op] != "" {
		return names[op]
	}
	return fmt.Sprintf("opcode(%d)", op)
}

// Instruction is the fixed-width bytecode unit (spec §3): an opcode plus
// three u16 operands and an extra u16 slot used by calls to carry the
// argument count.
type Instruction struct {
	Op       Opcode
	Operands [3]uint16
	Extra    uint16
}

func New(op Opcode, operands ...uint16) Instruction {
	var ins Instruction
	ins.Op = op
	for i := 0; i < len(operands) && i < 3; i++ {
		ins.Operands[i] = operands[i]
	}
	return ins
}

func (ins Instruction) String() string {
	return fmt.Sprintf("%-14s %v extra=%d", ins.Op, ins.Operands, ins.Extra)
}

// FunctionInfo is a compiled function's self-contained instruction stream
// and constant pool (spec §3 "Function table").
type FunctionInfo struct {
	Name         string
	ParamCount   int
	LocalCount   int
	Instructions []Instruction
	Constants    []value.Value
}
