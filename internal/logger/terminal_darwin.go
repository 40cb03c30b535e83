//go:build darwin

package logger

const ioctlGetTermios = 0x40487413 // TIOCGETA
