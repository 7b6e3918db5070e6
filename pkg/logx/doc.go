// Package logx provides remindd's structured logging facade.
//
// It wraps zerolog behind a small Logger type whose output sinks and level
// can be swapped at runtime via Service.Apply (config hot reload). The zero
// Logger value is a safe no-op, which keeps optional dependencies simple.
package logx
