// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/WonderfulToolchain/wf-relocation-packer/elfpack"
	"github.com/WonderfulToolchain/wf-relocation-packer/internal/logging"
)

type config struct {
	unpack        bool
	verbose       bool
	pad           bool
	format        string
	pageSize      uint64
	splitSegments bool
}

func newCommand(stdout io.Writer, stderr io.Writer) *cobra.Command {
	cfg := &config{}

	cmd := &cobra.Command{
		Use:   "relocation-packer [flags] file",
		Short: "Pack relative relocations of an ELF shared object in place",
		Long: `Packs the relative relocations of an ARM, AArch64, x86, x86-64 or RISC-V shared
object into a compact .android.rel.dyn or .android.rela.dyn section, or restores
them with --unpack. The file is modified in place.

Defaults can be set with RELOCATION_PACKER_FORMAT, RELOCATION_PACKER_PAGE_SIZE,
RELOCATION_PACKER_PAD and RELOCATION_PACKER_SPLIT_SEGMENTS.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg, args[0], stdout, stderr)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&cfg.unpack, "unpack", "u", false, "unpack relocations instead of packing them")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "log debug details")
	flags.BoolVarP(&cfg.pad, "pad", "p", env.Bool("RELOCATION_PACKER_PAD"),
		"keep the file layout, padding the relocation section with R_*_NONE entries")
	flags.StringVar(&cfg.format, "format", env.Str("RELOCATION_PACKER_FORMAT", "aps2"),
		"packed format: aps2, or legacy for APR1/APA1")
	flags.Uint64Var(&cfg.pageSize, "page-size", uint64(env.Int("RELOCATION_PACKER_PAGE_SIZE", elfpack.DefaultPageSize)),
		"granularity of file size changes")
	flags.BoolVar(&cfg.splitSegments, "split-segments", env.Bool("RELOCATION_PACKER_SPLIT_SEGMENTS"),
		"keep all addresses by splitting the LOAD segment instead of moving its start")

	return cmd
}

func run(cfg *config, path string, stdout io.Writer, stderr io.Writer) error {
	logger := logging.New(stdout, stderr, cfg.verbose)

	err := process(cfg, path, logger)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, elfpack.ErrNotBeneficial):
		level.Info(logger).Log("msg", "not packing", "file", path, "reason", err)
	default:
		level.Error(logger).Log("msg", "failed", "file", path, "err", err)
	}
	return reportedError{err}
}

// reportedError has already been logged.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

func process(cfg *config, path string, logger log.Logger) error {
	lineage, err := elfpack.ParseLineage(cfg.format)
	if err != nil {
		return err
	}
	opts := elfpack.Options{
		Lineage:        lineage,
		PadRelocations: cfg.pad,
		PageSize:       cfg.pageSize,
		Logger:         logger,
	}
	if cfg.splitSegments {
		opts.Strategy = elfpack.SplitStrategy{}
	}

	f, err := elfpack.Open(path, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	if cfg.unpack {
		return f.UnpackRelocations()
	}
	return f.PackRelocations()
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout io.Writer, stderr io.Writer) int {
	cmd := newCommand(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		if !errors.As(err, &reportedError{}) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
