//go:build !styledebug

package debug

// Enabled reports whether assertions are compiled in.
const Enabled = false
