// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package logging

import (
	"bytes"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
)

func TestRoutesByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := New(&stdout, &stderr, false)

	level.Info(logger).Log("msg", "packed")
	level.Warn(logger).Log("msg", "odd alignment")
	level.Error(logger).Log("msg", "not an ELF file")
	level.Debug(logger).Log("msg", "hidden")

	assert.Equal(t, "level=info msg=packed\n", stdout.String())
	assert.Equal(t, "level=warn msg=\"odd alignment\"\nlevel=error msg=\"not an ELF file\"\n", stderr.String())
}

func TestVerboseAllowsDebug(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := New(&stdout, &stderr, true)

	level.Debug(logger).Log("msg", "group", "size", 3)

	assert.Equal(t, "level=debug msg=group size=3\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestUnleveledRecordsGoToStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := New(&stdout, &stderr, false)

	logger.Log("msg", "plain")

	assert.Equal(t, "msg=plain\n", stdout.String())
	assert.Empty(t, stderr.String())
}
