// fatimg inspects and edits FAT16/FAT32 disk images and SD cards.
//
// Usage:
//
//	fatimg [flags] info
//	fatimg [flags] ls [-l] [-R] [path]
//	fatimg [flags] cat path
//	fatimg [flags] put localfile path
//	fatimg [flags] mkdir path
//	fatimg [flags] rm path
//	fatimg [flags] rmdir path
//	fatimg [flags] rmrf path
//	fatimg [flags] mkfs
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/soypat/sdfat"
	"github.com/soypat/sdfat/blockdev"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(afero.NewOsFs(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "fatimg: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	image       string
	partition   int
	logLevel    string
	readonly    bool
	long        bool
	recursive   bool
	fatBits     int
	blocks      int64
	label       string
	clusterSize uint8
	partitioned bool
}

func run(fsys afero.Fs, args []string, stdout, stderr io.Writer) error {
	var fl flags
	flagSet := pflag.NewFlagSet("fatimg", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&fl.configPath, "config", "", "YAML defaults file (default: "+defaultConfigPath()+")")
	flagSet.StringVarP(&fl.image, "image", "i", "", "disk image, .zst compressed image or block device")
	flagSet.IntVarP(&fl.partition, "partition", "p", -1, "MBR partition 1-4, 0 for none, -1 to try both")
	flagSet.StringVar(&fl.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flagSet.BoolVar(&fl.readonly, "readonly", false, "refuse writes to the image")
	flagSet.BoolVarP(&fl.long, "long", "l", false, "ls: print modification time and size")
	flagSet.BoolVarP(&fl.recursive, "recursive", "R", false, "ls: list subdirectories")
	flagSet.IntVar(&fl.fatBits, "fat", 0, "mkfs: 16 or 32, 0 picks by size")
	flagSet.Int64Var(&fl.blocks, "blocks", 0, "mkfs: image size in 512 byte blocks")
	flagSet.StringVar(&fl.label, "label", "", "mkfs: volume label")
	flagSet.Uint8Var(&fl.clusterSize, "cluster-size", 0, "mkfs: cluster size in blocks, 0 picks by size")
	flagSet.BoolVar(&fl.partitioned, "mbr", false, "mkfs: write an MBR partition table")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg := defaultConfig()
	cfgPath, explicit := fl.configPath, fl.configPath != ""
	if !explicit {
		cfgPath = defaultConfigPath()
	}
	if err := loadConfig(fsys, cfgPath, explicit, &cfg); err != nil {
		return err
	}
	if flagSet.Changed("image") {
		cfg.Image = fl.image
	}
	if flagSet.Changed("partition") {
		cfg.Partition = fl.partition
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = fl.logLevel
	}
	if flagSet.Changed("readonly") {
		cfg.ReadOnly = fl.readonly
	}
	level, err := cfg.level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cmdArgs := flagSet.Args()
	if len(cmdArgs) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	} else if cfg.Image == "" {
		return errors.New("no image given, use --image or the config file")
	}
	cmd, cmdArgs := cmdArgs[0], cmdArgs[1:]
	if cmd == "mkfs" {
		return mkfs(fsys, logger, &cfg, &fl)
	}

	need := map[string]int{"info": 0, "ls": -1, "cat": 1, "put": 2, "mkdir": 1, "rm": 1, "rmdir": 1, "rmrf": 1}
	n, ok := need[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	} else if n >= 0 && len(cmdArgs) != n {
		return fmt.Errorf("%s takes %d arguments, got %d", cmd, n, len(cmdArgs))
	}
	writes := cmd == "put" || cmd == "mkdir" || strings.HasPrefix(cmd, "rm")
	if writes && cfg.ReadOnly {
		return fmt.Errorf("%s: image is read only", cmd)
	}

	img, err := openImage(fsys, cfg.Image, !writes || cfg.ReadOnly)
	if err != nil {
		return err
	}
	var vol sdfat.FS
	vol.SetLogger(logger)
	vol.SetClock(sdfat.ClockFunc(time.Now))
	if cfg.Partition < 0 {
		err = vol.Mount(img.dev)
	} else {
		err = vol.MountPartition(img.dev, uint8(cfg.Partition))
	}
	if err != nil {
		img.close()
		return fmt.Errorf("mounting %s: %w", cfg.Image, err)
	}

	switch cmd {
	case "info":
		err = info(stdout, vol.Volume())
	case "ls":
		err = ls(stdout, &vol, cmdArgs, fl.long, fl.recursive)
	case "cat":
		err = cat(stdout, &vol, cmdArgs[0])
	case "put":
		err = put(fsys, &vol, cmdArgs[0], cmdArgs[1])
	case "mkdir":
		err = vol.Mkdir(cmdArgs[0])
	case "rm":
		err = vol.Remove(cmdArgs[0])
	case "rmdir":
		err = vol.Rmdir(cmdArgs[0])
	case "rmrf":
		err = vol.RemoveAll(cmdArgs[0])
	}
	if uerr := vol.Unmount(); err == nil {
		err = uerr
	}
	if cerr := img.close(); err == nil {
		err = cerr
	}
	return err
}

type image struct {
	dev   blockdev.Device
	close func() error
}

// openImage opens a raw device, an image file or a compressed image which
// is decompressed to memory and written back on close.
func openImage(fsys afero.Fs, name string, readonly bool) (image, error) {
	var img image
	switch {
	case blockdev.IsCompressed(name):
		mem, err := blockdev.LoadImage(fsys, name)
		if err != nil {
			return img, err
		}
		img.dev = mem
		img.close = func() error {
			if readonly {
				return nil
			}
			return blockdev.SaveImage(fsys, name, mem)
		}
	case strings.HasPrefix(name, "/dev/"):
		disk, err := blockdev.OpenDisk(name, readonly)
		if err != nil {
			return img, err
		}
		img.dev, img.close = disk, disk.Close
	default:
		f, err := blockdev.OpenFile(fsys, name, readonly)
		if err != nil {
			return img, err
		}
		img.dev, img.close = f, f.Close
	}
	if readonly {
		img.dev = blockdev.ReadOnly(img.dev)
	}
	return img, nil
}

func info(w io.Writer, vol *sdfat.Volume) error {
	free, err := vol.FreeClusters()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "format:         %s\n", vol.Format())
	fmt.Fprintf(w, "clusters:       %d\n", vol.ClusterCount())
	fmt.Fprintf(w, "free clusters:  %d\n", free)
	fmt.Fprintf(w, "cluster size:   %d\n", vol.ClusterSize())
	fmt.Fprintf(w, "FAT copies:     %d\n", vol.FATCount())
	fmt.Fprintf(w, "FAT blocks:     %d\n", vol.BlocksPerFAT())
	fmt.Fprintf(w, "FAT start:      %d\n", vol.FATStartBlock())
	fmt.Fprintf(w, "data start:     %d\n", vol.DataStartBlock())
	boot, err := vol.AppendBootSector([]byte("\nboot sector:\n"))
	if err != nil {
		return err
	}
	_, err = w.Write(boot)
	return err
}

func ls(w io.Writer, vol *sdfat.FS, args []string, long, recursive bool) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	dir, err := vol.Open(path, sdfat.ModeRead)
	if err != nil {
		return err
	}
	defer dir.Close()
	var lsFlags sdfat.LsFlag
	if long {
		lsFlags |= sdfat.LsDate | sdfat.LsSize
	}
	if recursive {
		lsFlags |= sdfat.LsRecursive
	}
	return dir.Ls(w, lsFlags, 0)
}

func cat(w io.Writer, vol *sdfat.FS, path string) error {
	f, err := vol.Open(path, sdfat.ModeRead)
	if err != nil {
		return err
	}
	defer f.Close()
	if !f.IsFile() {
		return fmt.Errorf("cat %s: %w", path, sdfat.ErrDenied)
	}
	_, err = io.Copy(w, f)
	return err
}

func put(fsys afero.Fs, vol *sdfat.FS, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := vol.Open(dst, sdfat.ModeWrite|sdfat.ModeCreate|sdfat.ModeTrunc)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("put %s: %w", dst, err)
	}
	return out.Close()
}

func mkfs(fsys afero.Fs, logger *slog.Logger, cfg *config, fl *flags) error {
	if cfg.ReadOnly {
		return errors.New("mkfs: image is read only")
	}
	fcfg := sdfat.FormatConfig{
		Label:       fl.label,
		ClusterSize: fl.clusterSize,
		Partitioned: fl.partitioned,
	}
	switch fl.fatBits {
	case 0:
	case 16:
		fcfg.Format = sdfat.FormatFAT16
	case 32:
		fcfg.Format = sdfat.FormatFAT32
	default:
		return fmt.Errorf("mkfs: unsupported FAT width %d", fl.fatBits)
	}
	var formatter sdfat.Formatter
	formatter.SetLogger(logger)

	name := cfg.Image
	if strings.HasPrefix(name, "/dev/") {
		disk, err := blockdev.OpenDisk(name, false)
		if err != nil {
			return err
		}
		blocks := disk.Size() / blockdev.BlockSize
		if err := formatter.Format(disk, uint32(min(blocks, 1<<32-1)), fcfg); err != nil {
			disk.Close()
			return err
		}
		return disk.Close()
	}
	if fl.blocks <= 0 || fl.blocks >= 1<<32 {
		return errors.New("mkfs: --blocks must be between 1 and 2^32-1")
	}
	if blockdev.IsCompressed(name) {
		mem := blockdev.NewBytes(int(fl.blocks))
		if err := formatter.Format(mem, uint32(fl.blocks), fcfg); err != nil {
			return err
		}
		return blockdev.SaveImage(fsys, name, mem)
	}
	f, err := blockdev.CreateFile(fsys, name, fl.blocks)
	if err != nil {
		return err
	}
	if err := formatter.Format(f, uint32(fl.blocks), fcfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
