// Package cachetest provides filesystem fakes for exercising cache failure paths.
package cachetest

import (
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/afero"
)

// ErrInjected is returned by every operation FaultyFs was told to fail.
var ErrInjected = errors.New("injected fault")

// FaultyFs wraps an afero.Fs and fails writes, reads or renames on demand.
// Writes fail after persisting half of the buffer so callers observe a partial
// file. ShortReads reports EOF immediately while Stat still reports the full
// size, the way a file truncated behind an open handle looks.
type FaultyFs struct {
	afero.Fs

	FailWrites  atomic.Bool
	FailReads   atomic.Bool
	ShortReads  atomic.Bool
	FailRenames atomic.Bool
}

// NewFaultyFs wraps an in-memory filesystem.
func NewFaultyFs() *FaultyFs {
	return &FaultyFs{Fs: afero.NewMemMapFs()}
}

func (f *FaultyFs) Open(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

func (f *FaultyFs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

func (f *FaultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, owner: f}, nil
}

func (f *FaultyFs) Rename(oldname, newname string) error {
	if f.FailRenames.Load() {
		return ErrInjected
	}
	return f.Fs.Rename(oldname, newname)
}

type faultyFile struct {
	afero.File
	owner *FaultyFs
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if !f.owner.FailWrites.Load() {
		return f.File.Write(p)
	}
	n, _ := f.File.Write(p[:len(p)/2])
	return n, ErrInjected
}

func (f *faultyFile) Read(p []byte) (int, error) {
	switch {
	case f.owner.FailReads.Load():
		return 0, ErrInjected
	case f.owner.ShortReads.Load():
		return 0, io.EOF
	}
	return f.File.Read(p)
}
