// Package secobj manages the sections of object files and transparently
// encrypts the code sections of registered components with AES in counter
// mode.
//
// # Overview
//
// An Object is a list of named, flagged byte ranges (sections) plus a name
// table. Sections are created, found, renamed and reordered through the
// Object; their bytes move through a Backend. The contents bridge
// (SetSectionContents, GetSectionContents) checks bounds and flags and, when
// the object path names a registered component, ciphers exactly the byte
// range being transferred.
//
// # Components
//
// Key material comes from a component configuration:
//
//	Verbose
//	Component = "libc.o"
//	Vendor    = "V"
//	Server    = "S"
//	User      = "U"
//	Key       = "000102030405060708090a0b0c0d0e0f"
//	Iv        = "101112131415161718191a1b1c1d1e1f"
//	Component = "app.o"
//	...
//
// A component matches a path whose trailing segment, delimited by '/' or
// '\', equals its name. The effective counter block of an object is the
// component IV XOR the object nonce.
//
// # Basic Usage
//
//	ctx, err := secobj.NewContext(secobj.DefaultConfig())
//	if err != nil {
//	    panic(err)
//	}
//	defer ctx.Shutdown()
//
//	if err := ctx.Components().LoadFile(fs, "/etc/components.conf"); err != nil {
//	    panic(err)
//	}
//
//	obj, _ := ctx.CreateObjectFile(fs, "/build/libc.o")
//	text, _ := obj.MakeSectionWithFlags(".text", secobj.FlagCode|secobj.FlagHasContents|secobj.FlagAlloc)
//	obj.SetSectionSize(text, uint64(len(code)))
//	obj.SetSectionContents(text, code, 0) // stored encrypted
//	obj.Close()
//
// # Counter Mode Seeking
//
// Reads and writes may address any sub-range in any order. The keystream for
// byte offset O starts at counter IV + O/16 (a 128-bit big-endian add) with
// the first O%16 keystream bytes discarded, so ciphering a whole section and
// slicing gives the same bytes as ciphering the slice at its offset. Large
// ranges are split across goroutines on the same principle.
//
// # Security Considerations
//
// Counter mode gives confidentiality only: stored code sections are not
// authenticated. Reusing a nonce with the same component key reveals the XOR
// of two plaintexts; CreateObject draws a fresh random nonce unless the
// component already carries one.
//
// # Concurrency
//
// An Object must be used by one goroutine at a time. The component registry,
// engine cache and id counter of a Context are safe for concurrent use, so
// independent objects may be processed in parallel.
package secobj
