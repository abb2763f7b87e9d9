// Package asar writes and reads Electron asar archives.
//
// An archive starts with two pickles: an 8 byte size pickle holding the length of the
// header pickle, then the header pickle holding a JSON tree of the packed files. File
// contents follow, concatenated in tree order. Offsets in the tree are decimal strings
// relative to the end of the header.
package asar
