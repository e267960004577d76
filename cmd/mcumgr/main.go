// Package main provides mcumgr, a command-line client for SMP device
// management with pausable, cancelable chunked transfers, and a simulated
// device to run it against.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// printUsage prints the usage information.
func printUsage() {
	fmt.Println("mcumgr - SMP device management client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s <command> [options] [arguments]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Run a simulated device over UDP")
	fmt.Println("  upload <local> <remote>    Upload a file to the device file system")
	fmt.Println("  download <remote> <local>  Download a file from the device file system")
	fmt.Println("  image-upload <file>        Upload a firmware image")
	fmt.Println()
	fmt.Println("While a transfer runs, SIGUSR1 pauses it, SIGUSR2 resumes it and")
	fmt.Println("SIGINT cancels it. Every option can also be set through MCUMGR_*")
	fmt.Println("environment variables or a YAML file passed with -config.")
	fmt.Println("With -simulate the device starts with an empty file system, so")
	fmt.Println("downloads only succeed for files uploaded in the same run.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s serve -listen 127.0.0.1:1337 -device-mtu 256\n", os.Args[0])
	fmt.Printf("  %s upload -addr 127.0.0.1:1337 ./app.bin /lfs/app.bin\n", os.Args[0])
	fmt.Printf("  %s image-upload -simulate -device-mtu 128 ./zephyr.bin\n", os.Args[0])
	fmt.Printf("  MCUMGR_LOG_LEVEL=debug %s download /lfs/log.txt ./log.txt\n", os.Args[0])
}

// command describes one subcommand.
type command struct {
	args  int
	flags []string
	run   func(ctx context.Context, cfg *Config, args []string) error
}

var commands = map[string]command{
	"serve": {
		flags: []string{"listen", "device-mtu", "image-slots"},
		run: func(ctx context.Context, cfg *Config, _ []string) error {
			return serve(ctx, cfg)
		},
	},
	"upload": {
		args:  2,
		flags: []string{"addr", "mtu", "timeout", "simulate", "device-mtu"},
		run: func(ctx context.Context, cfg *Config, args []string) error {
			return upload(ctx, cfg, args[0], args[1])
		},
	},
	"download": {
		args:  2,
		flags: []string{"addr", "mtu", "timeout", "simulate", "device-mtu"},
		run: func(ctx context.Context, cfg *Config, args []string) error {
			return download(ctx, cfg, args[0], args[1])
		},
	},
	"image-upload": {
		args:  1,
		flags: []string{"addr", "mtu", "timeout", "image", "simulate", "device-mtu", "image-slots"},
		run: func(ctx context.Context, cfg *Config, args []string) error {
			return imageUpload(ctx, cfg, args[0])
		},
	},
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-help" || args[0] == "-h" {
		printUsage()
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	configPath := registerFlags(fs, Default(), cmd.flags...)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if fs.NArg() != cmd.args {
		return fmt.Errorf("%s expects %d arguments, got %d", args[0], cmd.args, fs.NArg())
	}

	cfg, err := Load(*configPath, fs)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	return cmd.run(context.Background(), cfg, fs.Args())
}

// main is the entry point for mcumgr.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}
}
