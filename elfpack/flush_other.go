// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

//go:build !unix

package elfpack

import "os"

// No advisory locking outside Unix.
func lockFile(f *os.File) error {
	return nil
}

func unlockFile(f *os.File) {}

func truncateFile(f *os.File, size int64) error {
	return f.Truncate(size)
}
