// Package logx wraps zerolog behind a small Logger/Field facade.
//
// The Service owns an atomically swappable root logger so sinks and levels
// can change at runtime (config hot reload) without replacing loggers that
// components already hold.
package logx
