// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"io"
	"strings"
)

func readString(r io.Reader) (string, error) {
	var s strings.Builder
	buf := make([]byte, 1)

	for {
		if _, err := r.Read(buf); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return s.String(), err
		}
		if buf[0] == 0 {
			return s.String(), nil
		}
		s.WriteByte(buf[0])
	}
}

func alignUp(v uint64, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
