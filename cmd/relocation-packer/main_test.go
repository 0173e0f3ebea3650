// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WonderfulToolchain/wf-relocation-packer/elf"
	"github.com/WonderfulToolchain/wf-relocation-packer/internal/elftest"
)

func writeLibrary(t *testing.T, relative int) (string, []byte) {
	t.Helper()
	image := elftest.Build(elftest.Options{
		Class:        elf.ELFCLASS64,
		Relative:     relative,
		Absolute:     2,
		PackedStub:   true,
		SpareDynamic: 2,
	})
	path := filepath.Join(t.TempDir(), "libtest.so")
	require.NoError(t, os.WriteFile(path, image, 0o644))
	return path, image
}

func TestPackAndUnpack(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"--split-segments"},
		{"--format", "legacy"},
		{"-p"},
	} {
		name := "default"
		if len(args) > 0 {
			name = strings.Join(args, " ")
		}
		t.Run(name, func(t *testing.T) {
			path, original := writeLibrary(t, 1000)
			var stdout, stderr bytes.Buffer

			assert.Equal(t, 0, execute(append(args, path), &stdout, &stderr))
			assert.Contains(t, stdout.String(), "packed relocations")
			assert.Empty(t, stderr.String())
			packed, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotEqual(t, original, packed)

			stdout.Reset()
			assert.Equal(t, 0, execute(append([]string{"-u", "-v"}, append(args, path)...), &stdout, &stderr))
			assert.Contains(t, stdout.String(), "unpacked relocations")
			assert.Contains(t, stdout.String(), "level=debug")
			unpacked, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, original, unpacked)
		})
	}
}

func TestNotBeneficial(t *testing.T) {
	path, original := writeLibrary(t, 8)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, execute([]string{path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "level=info")
	assert.Contains(t, stdout.String(), "not packing")
	assert.Empty(t, stderr.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

func TestErrors(t *testing.T) {
	path, _ := writeLibrary(t, 1000)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, execute([]string{"-u", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "level=error")
	assert.Contains(t, stderr.String(), "not packed")

	stderr.Reset()
	assert.Equal(t, 1, execute([]string{"--format", "apr1", path}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown packed relocation format")

	stderr.Reset()
	assert.Equal(t, 1, execute([]string{}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Error: accepts 1 arg(s)")

	stderr.Reset()
	assert.Equal(t, 1, execute([]string{filepath.Join(t.TempDir(), "missing.so")}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "no such file")
}

func TestEnvironmentDefaults(t *testing.T) {
	t.Setenv("RELOCATION_PACKER_FORMAT", "legacy")
	path, _ := writeLibrary(t, 1000)
	var stdout, stderr bytes.Buffer

	require.Equal(t, 0, execute([]string{path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "format=APA1")
}
