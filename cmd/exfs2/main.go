// Command exfs2 is a thin CLI front end over pkg/exfs: it parses
// arguments, opens a volume, and dispatches to the library. It carries
// no storage logic of its own — that lives entirely in pkg/exfs and
// the packages it composes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sahrohit/exfs2/pkg/exfs"
	"github.com/sahrohit/exfs2/pkg/exferr"
)

const usage = `exfs2 - a segmented, inode-based userspace file store

Usage:
  exfs2 -dir <volume-dir> list <path>
  exfs2 -dir <volume-dir> add <target-path> <source-host-file>
  exfs2 -dir <volume-dir> extract <path>
  exfs2 -dir <volume-dir> remove <path>
  exfs2 -dir <volume-dir> debug <path>

-dir defaults to the current directory.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("exfs2", flag.ContinueOnError)
	dir := fs.String("dir", ".", "volume directory")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	store, err := exfs.Open(*dir)
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	switch cmd := rest[0]; cmd {
	case "list":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "usage: exfs2 list <path>")
			return 2
		}
		return cmdList(store, rest[1])
	case "add":
		if len(rest) != 3 {
			fmt.Fprintln(os.Stderr, "usage: exfs2 add <target-path> <source-host-file>")
			return 2
		}
		return cmdAdd(store, rest[1], rest[2])
	case "extract":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "usage: exfs2 extract <path>")
			return 2
		}
		return cmdExtract(store, rest[1])
	case "remove":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "usage: exfs2 remove <path>")
			return 2
		}
		return cmdRemove(store, rest[1])
	case "debug":
		if len(rest) != 2 {
			fmt.Fprintln(os.Stderr, "usage: exfs2 debug <path>")
			return 2
		}
		return cmdDebug(store, rest[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func cmdList(store *exfs.Store, path string) int {
	entries, err := store.List(path)
	if err != nil {
		return fail(err)
	}
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Printf("%-4s %8d  %s\n", kind, e.SizeBytes, e.Path)
	}
	return 0
}

func cmdAdd(store *exfs.Store, target, source string) int {
	f, err := os.Open(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening source file: %s\n", err)
		return 1
	}
	defer f.Close()
	if err := store.Add(target, f); err != nil {
		return fail(err)
	}
	return 0
}

func cmdExtract(store *exfs.Store, path string) int {
	if err := store.Extract(path, os.Stdout); err != nil {
		return fail(err)
	}
	return 0
}

func cmdRemove(store *exfs.Store, path string) int {
	if err := store.Remove(path); err != nil {
		return fail(err)
	}
	return 0
}

func cmdDebug(store *exfs.Store, path string) int {
	if err := store.Debug(path, os.Stdout); err != nil {
		return fail(err)
	}
	return 0
}

// fail prints a short human-readable message for err, mapping its
// taxonomy code where known, and returns the process exit status.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error (%s): %s\n", exferr.GetCode(err), err)
	return 1
}
