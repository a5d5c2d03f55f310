// Package logx configures vocabremind's structured logging.
//
// logx.Logger is a thin wrapper over zerolog: readable console output with a
// short caller, an optional JSON file, and an optional alert sink that pushes
// WARN and above to an operator chat under a rate limit.
package logx
