// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

//go:build unix

package elfpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WonderfulToolchain/wf-relocation-packer/elf"
	"github.com/WonderfulToolchain/wf-relocation-packer/internal/elftest"
)

func TestOpenLocksFile(t *testing.T) {
	path := writeFixture(t, elftest.Build(fixture(elf.ELFCLASS32)))
	f, err := Open(path, Options{})
	require.NoError(t, err)

	_, err = Open(path, Options{})
	assert.ErrorContains(t, err, "lock")

	require.NoError(t, f.Close())
	f, err = Open(path, Options{})
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
