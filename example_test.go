package sdfat_test

import (
	"fmt"
	"io"
	"os"

	"github.com/soypat/sdfat"
	"github.com/soypat/sdfat/blockdev"
)

func ExampleFS_basic_usage() {
	// device could be an SD card, RAM, or anything that implements the BlockDevice interface.
	const blocks = 32000
	device := blockdev.NewBytes(blocks)
	var formatter sdfat.Formatter
	err := formatter.Format(device, blocks, sdfat.FormatConfig{})
	if err != nil {
		panic(err)
	}
	var fs sdfat.FS
	err = fs.Mount(device)
	if err != nil {
		panic(err)
	}
	file, err := fs.Open("/newfile.txt", sdfat.ModeCreate|sdfat.ModeWrite)
	if err != nil {
		panic(err)
	}

	_, err = file.Write([]byte("Hello, World!"))
	if err != nil {
		panic(err)
	}
	err = file.Close()
	if err != nil {
		panic(err)
	}

	// Read back the file:
	file, err = fs.Open("/newfile.txt", sdfat.ModeRead)
	if err != nil {
		panic(err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(data))
	file.Close()
	// Output:
	// Hello, World!
}

func ExampleFile_Ls() {
	const blocks = 32000
	device := blockdev.NewMap(blocks)
	var formatter sdfat.Formatter
	if err := formatter.Format(device, blocks, sdfat.FormatConfig{Partitioned: true}); err != nil {
		panic(err)
	}
	var fs sdfat.FS
	if err := fs.Mount(device); err != nil {
		panic(err)
	}
	defer fs.Unmount()
	if err := fs.Mkdir("/logs/2024"); err != nil {
		panic(err)
	}
	for _, name := range []string{"/logs/2024/boot.log", "/config.txt"} {
		f, err := fs.Open(name, sdfat.ModeCreate|sdfat.ModeWrite)
		if err != nil {
			panic(err)
		}
		f.Close()
	}
	if err := fs.Root().Ls(os.Stdout, sdfat.LsRecursive, 0); err != nil {
		panic(err)
	}
	// Output:
	// LOGS/
	//   2024/
	//     BOOT.LOG
	// CONFIG.TXT
}
