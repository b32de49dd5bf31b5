//go:build !debug

package buildmode

const Debug = false
