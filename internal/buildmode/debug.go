//go:build debug

package buildmode

const Debug = true
