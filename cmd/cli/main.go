package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"historytree/pkg/client"
	"historytree/pkg/document"
	"historytree/pkg/storage"

	"github.com/spf13/cobra"
)

const Prompt = "htree> "

// editor is what the REPL drives, either in-process or over TCP.
type editor interface {
	Add(parent int, text string) (int, error)
	Change(node int, text string) (int, error)
	Delete(node int) (int, error)
	Undo() (int, error)
	Redo() (int, error)
	Children(parent int) ([]int, error)
	Tree(node int) (string, error)
}

func main() {
	root := &cobra.Command{
		Use:   "htree",
		Short: "Edit a history tree interactively",
	}

	var addr string
	remote := &cobra.Command{
		Use:   "repl",
		Short: "Edit a document on a running historytree server",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("historytree CLI (Target: %s)\n", addr)
			cli, err := client.Dial(addr)
			if err != nil {
				fmt.Println("Tip: Ensure the server is running (e.g. go run ./cmd/server).")
				return fmt.Errorf("connect: %w", err)
			}
			defer cli.Close()
			doc, err := cli.Open()
			if err != nil {
				return err
			}
			defer cli.CloseDoc(doc)
			fmt.Printf("Connected, document %s. Type 'help' for commands.\n", doc)
			return repl(os.Stdin, os.Stdout, &remoteEditor{cli: cli, doc: doc})
		},
	}
	remote.Flags().StringVar(&addr, "addr", "localhost:9090", "historytree TCP server address")

	local := &cobra.Command{
		Use:   "local",
		Short: "Edit an in-memory document",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := document.New(storage.NewMemoryBackend(32), nil)
			if err != nil {
				return err
			}
			defer doc.Close()
			fmt.Println("In-memory document. Type 'help' for commands.")
			return repl(os.Stdin, os.Stdout, &localEditor{doc: doc})
		},
	}

	root.AddCommand(remote, local)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func repl(in io.Reader, out io.Writer, ed editor) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, Prompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])

		switch cmd {
		case "add":
			withIndex(out, parts, "add <parent> <text>", true, func(idx int, text string) (string, error) {
				n, err := ed.Add(idx, text)
				return fmt.Sprintf("added %d", n), err
			})
		case "change", "mv":
			withIndex(out, parts, "change <node> <text>", true, func(idx int, text string) (string, error) {
				n, err := ed.Change(idx, text)
				return fmt.Sprintf("node is now %d", n), err
			})
		case "del", "rm":
			withIndex(out, parts, "del <node>", false, func(idx int, _ string) (string, error) {
				n, err := ed.Delete(idx)
				return fmt.Sprintf("deleted (record %d)", n), err
			})
		case "ls":
			withIndex(out, parts, "ls <parent>", false, func(idx int, _ string) (string, error) {
				kids, err := ed.Children(idx)
				return fmt.Sprint(kids), err
			})
		case "tree", "print":
			if len(parts) == 1 {
				parts = append(parts, "0")
			}
			withIndex(out, parts, "tree [node]", false, func(idx int, _ string) (string, error) {
				s, err := ed.Tree(idx)
				return strings.TrimRight(s, "\n"), err
			})
		case "undo", "u":
			report(out, "cursor", ed.Undo)
		case "redo", "r":
			report(out, "cursor", ed.Redo)
		case "help":
			printHelp(out)
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		default:
			fmt.Fprintf(out, "Unknown command: '%s'. Type 'help'.\n", cmd)
		}
	}
}

func withIndex(out io.Writer, parts []string, usage string, needText bool, fn func(int, string) (string, error)) {
	if len(parts) < 2 || (needText && len(parts) < 3) {
		fmt.Fprintf(out, "Usage: %s\n", usage)
		return
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		fmt.Fprintln(out, "Error: index must be an integer")
		return
	}
	msg, err := fn(idx, strings.Join(parts[2:], " "))
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(out, msg)
}

func report(out io.Writer, label string, fn func() (int, error)) {
	n, err := fn()
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "%s %d\n", label, n)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Commands:
  add <parent> <text>    Add a node
  change <node> <text>   Write a new version of a node
  del <node>             Delete a node
  ls <parent>            List current children
  tree [node]            Print the tree (default: root)
  undo / redo            Move the history cursor
  exit                   Exit CLI
	`)
}

type localEditor struct {
	doc *document.Document
}

func (e *localEditor) Add(parent int, text string) (int, error) { return e.doc.Add(text, parent) }

func (e *localEditor) Change(node int, text string) (int, error) { return e.doc.Change(text, node) }

func (e *localEditor) Delete(node int) (int, error) { return e.doc.Delete(node) }

func (e *localEditor) Undo() (int, error) {
	e.doc.Undo()
	return e.doc.Cursor(), nil
}

func (e *localEditor) Redo() (int, error) {
	e.doc.Redo()
	return e.doc.Cursor(), nil
}

func (e *localEditor) Children(parent int) ([]int, error) { return e.doc.Children(parent), nil }

func (e *localEditor) Tree(node int) (string, error) {
	var buf bytes.Buffer
	err := e.doc.Print(&buf, node)
	return buf.String(), err
}

type remoteEditor struct {
	cli *client.Client
	doc string
}

func (e *remoteEditor) Add(parent int, text string) (int, error) {
	return e.cli.Add(e.doc, parent, text)
}

func (e *remoteEditor) Change(node int, text string) (int, error) {
	return e.cli.Change(e.doc, node, text)
}

func (e *remoteEditor) Delete(node int) (int, error) { return e.cli.Delete(e.doc, node) }

func (e *remoteEditor) Undo() (int, error) { return e.cli.Undo(e.doc) }

func (e *remoteEditor) Redo() (int, error) { return e.cli.Redo(e.doc) }

func (e *remoteEditor) Children(parent int) ([]int, error) { return e.cli.Children(e.doc, parent) }

func (e *remoteEditor) Tree(node int) (string, error) { return e.cli.Tree(e.doc, node) }
