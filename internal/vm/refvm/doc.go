// Package refvm is a small stack-bytecode runtime implementing vm.Runtime.
//
// It exists so capture and offline render can run end to end in tests and
// from the CLI without the production runtime. Programs are sequences of
// one-byte opcodes with little-endian operands; Assemble turns the text form
// into bytecode and Disassemble goes the other way.
//
// Text form, one instruction per line, ';' starts a comment:
//
//	push 440        ; frequency
//	pinyq
//	mul
//	store 0
//	capture 7 0     ; scope 7, dependency 0 <- top of stack
package refvm
