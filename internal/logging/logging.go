// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Package logging builds the logger handed to every component of the packer.
package logging

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New returns a logfmt logger writing info and debug records to stdout and
// warnings and errors to stderr. Debug records are dropped unless verbose.
func New(stdout io.Writer, stderr io.Writer, verbose bool) log.Logger {
	var logger log.Logger = &router{
		stdout: log.NewLogfmtLogger(log.NewSyncWriter(stdout)),
		stderr: log.NewLogfmtLogger(log.NewSyncWriter(stderr)),
	}

	allow := level.AllowInfo()
	if verbose {
		allow = level.AllowDebug()
	}
	return level.NewFilter(logger, allow)
}

type router struct {
	stdout log.Logger
	stderr log.Logger
}

func (r *router) Log(keyvals ...interface{}) error {
	for i := 0; i+1 < len(keyvals); i += 2 {
		if keyvals[i] != level.Key() {
			continue
		}
		if v, ok := keyvals[i+1].(level.Value); ok {
			switch v.String() {
			case level.WarnValue().String(), level.ErrorValue().String():
				return r.stderr.Log(keyvals...)
			}
		}
	}
	return r.stdout.Log(keyvals...)
}
