package main

import (
	"fmt"
	"log/slog"
	"os"

	"historytree/pkg/core"
	"historytree/pkg/document"
	"historytree/pkg/storage"
)

func main() {
	fmt.Println("========= indices =========")
	indices()

	fmt.Println("========= payload =========")
	if err := payload(); err != nil {
		slog.Error("payload example failed", "err", err)
		os.Exit(1)
	}
}

// indices works with bare history indices.
func indices() {
	ht := core.New()
	root := ht.Root()
	ht.Add(root) // assets
	notes := ht.Add(root)
	bar := ht.Add(notes)
	ht.Add(bar) // baz
	ht.Print(os.Stdout, root)

	bar = ht.Change(bar)
	ht.Print(os.Stdout, root)

	src := ht.Add(root)
	ht.Add(src) // file
	ht.Add(src) // foo
	ht.Print(os.Stdout, root)

	ht.Delete(bar)
	ht.Print(os.Stdout, root)

	fmt.Println("--------- undo ----------")
	for i := 0; i < ht.Len()-1; i++ {
		ht.Undo()
		ht.Print(os.Stdout, root)
	}

	fmt.Println("--------- redo ----------")
	for i := 0; i < ht.Len()-1; i++ {
		ht.Redo()
		ht.Print(os.Stdout, root)
	}
}

// payload keeps a text per node next to the tree.
func payload() error {
	doc, err := document.New(storage.NewMemoryBackend(32), nil)
	if err != nil {
		return err
	}
	defer doc.Close()

	root := doc.Root()
	assets, err := doc.Add("asssets", root)
	if err != nil {
		return err
	}
	if _, err := doc.Add("syntax", assets); err != nil {
		return err
	}
	doc.Print(os.Stdout, assets)

	fmt.Println("---- change ----")
	if assets, err = doc.Change("assets", assets); err != nil {
		return err
	}
	doc.Print(os.Stdout, assets)

	fmt.Println("---- undo ----")
	doc.Undo()
	assets = doc.Children(root)[0]
	doc.Print(os.Stdout, assets)

	fmt.Println("---- add ----")
	if _, err := doc.Add("hello", assets); err != nil {
		return err
	}
	assets = doc.Children(root)[0]
	return doc.Print(os.Stdout, assets)
}
