// Package workspace manages the runner's scratch directories: the work tree with its
// group, store and output subdirectories.
package workspace
