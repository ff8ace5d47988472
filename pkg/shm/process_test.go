package shm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "SHMQ_TEST_HELPER"

// TestHelperReader is the reader half of TestTwoProcesses, run in a child
// process. It does nothing in a normal test run.
func TestHelperReader(t *testing.T) {
	if os.Getenv(helperEnv) != "reader" {
		return
	}
	count, err := strconv.Atoi(os.Getenv("SHMQ_TEST_COUNT"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cfg := testConfig(os.Getenv("SHMQ_TEST_DIR"), os.Getenv("SHMQ_TEST_NAME"), RoleReader, 64, 1024)
	cfg.AttachAttempts = 1000
	cfg.AttachInterval = 5 * time.Millisecond
	r, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer r.Destroy()

	out := make([]byte, 64)
	var sum uint64
	for i := 0; i < count; i++ {
		require.NoError(t, DequeueWait(ctx, r, out, nil))
		sum += decode(out)
	}
	fmt.Printf("helper sum=%d\n", sum)
}

func TestTwoProcesses(t *testing.T) {
	requireLinux(t)
	if testing.Short() {
		t.Skip("spawns a child process")
	}
	const count = 1 << 16
	dir := t.TempDir()
	name := testName()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestHelperReader$", "-test.count=1")
	cmd.Env = append(os.Environ(),
		helperEnv+"=reader",
		"SHMQ_TEST_DIR="+dir,
		"SHMQ_TEST_NAME="+name,
		"SHMQ_TEST_COUNT="+strconv.Itoa(count),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// The child starts first and has to wait for the segment to be published.
	require.NoError(t, cmd.Start())

	w := openQueue(t, testConfig(dir, name, RoleWriter, 64, 1024))
	require.NoError(t, w.WaitConnected(ctx))
	var sum uint64
	for i := uint64(0); i < count; i++ {
		require.NoError(t, EnqueueWait(ctx, w, encode(64, i), nil))
		sum += i
	}

	require.NoError(t, cmd.Wait(), out.String())
	assert.Contains(t, out.String(), fmt.Sprintf("helper sum=%d", sum))
}
