/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/valyala/bytebufferpool"
)

type logger struct {
	name      string
	out       io.Writer
	callDepth int
}

var (
	internalLogger = &logger{"", os.Stdout, 3}
	level          atomic.Int32
	debugMode      = false

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

const (
	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelNoPrint
)

func init() {
	level.Store(levelWarn)
	if v := os.Getenv("SHMQ_LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= levelTrace && n <= levelNoPrint {
			level.Store(int32(n))
		}
	}

	if os.Getenv("SHMQ_DEBUG_MODE") != "" {
		debugMode = true
		if level.Load() > levelDebug {
			level.Store(levelDebug)
		}
	}
}

// SetLogLevel changes the internal logger's level; the default is Warning
// (3). The process env `SHMQ_LOG_LEVEL` sets it at startup, 5 disables
// logging.
func SetLogLevel(l int) {
	if l >= levelTrace && l <= levelNoPrint {
		level.Store(int32(l))
	}
}

func newLogger(name string, out io.Writer) *logger {
	if out == nil {
		out = os.Stdout
	}
	return &logger{
		name:      name,
		out:       out,
		callDepth: 3,
	}
}

func (l *logger) logf(lv int, format string, a ...interface{}) {
	if int(level.Load()) > lv {
		return
	}
	if _, err := fmt.Fprintf(l.out, l.prefix(lv)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger %s failed: %v\n", levelName[lv], err)
	}
}

func (l *logger) errorf(format string, a ...interface{}) {
	l.logf(levelError, format, a...)
}

func (l *logger) warnf(format string, a ...interface{}) {
	l.logf(levelWarn, format, a...)
}

func (l *logger) infof(format string, a ...interface{}) {
	l.logf(levelInfo, format, a...)
}

func (l *logger) debugf(format string, a ...interface{}) {
	l.logf(levelDebug, format, a...)
}

func (l *logger) tracef(format string, a ...interface{}) {
	l.logf(levelTrace, format, a...)
}

func (l *logger) prefix(level int) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.WriteString(colors[level])
	_, _ = buf.WriteString(levelName[level])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location())
	_ = buf.WriteByte(' ')
	if l.name != "" {
		_, _ = buf.WriteString(l.name)
		_ = buf.WriteByte(' ')
	}
	return buf.String()
}

func (l *logger) location() string {
	// logf adds one frame between the caller and prefix.
	_, file, line, ok := runtime.Caller(l.callDepth + 1)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}

// ReadSegmentState maps the segment at path read-only and returns a copy of
// its header. It works on any segment, including one owned by another
// process, and never changes it.
func ReadSegmentState(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrResource, err)
	}
	defer f.Close()

	mem, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: mmap %s: %w", ErrResource, path, err)
	}
	defer func() {
		if uerr := mem.Unmap(); uerr != nil {
			internalLogger.warnf("unmap %s: %v", path, uerr)
		}
	}()
	if len(mem) < HeaderSize {
		return Snapshot{}, fmt.Errorf("%w: %s has %d bytes, header needs %d", ErrProtocolMismatch, path, len(mem), HeaderSize)
	}
	s := snapshotOf(headerAt(mem))
	s.Name = filepath.Base(path)
	s.Path = path
	return s, nil
}

// DebugQueueDetail prints the header of the queue segment mapped at `path`.
func DebugQueueDetail(path string) {
	DebugQueueDetailTo(os.Stdout, path)
}

// DebugQueueDetailTo is DebugQueueDetail writing to w.
func DebugQueueDetailTo(w io.Writer, path string) {
	s, err := ReadSegmentState(path)
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintf(w, "path:%s name:%s version:%d cap:%d elemSize:%d writer:%d reader:%d size:%d initialized:%t connected:%t\n",
		s.Path, s.Name, s.Version, s.ElementCapacity, s.ElementSize, s.WriterIdx, s.ReaderIdx, s.Len(), s.Initialized, s.ClientConnected)
}
