// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase never imports zerolog directly:
// components take a logx.Logger and stay decoupled from sink setup. The
// Service owns the sinks (console, file) and can swap levels and outputs
// at runtime via Apply(); loggers created from it stay live across those
// swaps.
//
// The zero value of Logger is a safe no-op.
package logx
