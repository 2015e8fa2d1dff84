package arm

import (
	"errors"
	"testing"
	"time"

	"github.com/robosix/armlink/logger"
	"github.com/stretchr/testify/require"
)

func newTestLink(t *testing.T) (*Link, *fakePort) {
	t.Helper()

	port := newFakePort(t)
	return newLink(port, "/dev/fake", logger.GetLogger()), port
}

func TestLinkWriteLine(t *testing.T) {
	t.Run("appends terminator", func(t *testing.T) {
		link, port := newTestLink(t)

		require.NoError(t, link.WriteLine("G28"))
		require.Equal(t, []string{"G28"}, port.writtenLines())
	})

	t.Run("write failure", func(t *testing.T) {
		link, port := newTestLink(t)
		port.writeErr = errors.New("device gone")

		err := link.WriteLine("G28")
		require.ErrorIs(t, err, ErrLinkFailure)
	})

	t.Run("after close", func(t *testing.T) {
		link, _ := newTestLink(t)
		require.NoError(t, link.Close())
		require.ErrorIs(t, link.WriteLine("G28"), ErrLinkClosed)
	})
}

func TestLinkReadLine(t *testing.T) {
	t.Run("single line", func(t *testing.T) {
		link, port := newTestLink(t)
		port.pending = []byte("OK\n")

		line, err := link.ReadLine(time.Now().Add(time.Second))
		require.NoError(t, err)
		require.Equal(t, "OK", line)
	})

	t.Run("skips empty lines", func(t *testing.T) {
		link, port := newTestLink(t)
		port.pending = []byte("\n  \nT01\n")

		line, err := link.ReadLine(time.Now().Add(time.Second))
		require.NoError(t, err)
		require.Equal(t, "T01", line)
	})

	t.Run("two lines in one read", func(t *testing.T) {
		link, port := newTestLink(t)
		port.pending = []byte("OK\nT01\n")

		line, err := link.ReadLine(time.Now().Add(time.Second))
		require.NoError(t, err)
		require.Equal(t, "OK", line)

		// second line comes from the link's own pending buffer
		line, err = link.ReadLine(time.Now().Add(time.Second))
		require.NoError(t, err)
		require.Equal(t, "T01", line)
	})

	t.Run("trims whitespace and carriage return", func(t *testing.T) {
		link, port := newTestLink(t)
		port.pending = []byte("  OK \r\n")

		line, err := link.ReadLine(time.Now().Add(time.Second))
		require.NoError(t, err)
		require.Equal(t, "OK", line)
	})

	t.Run("deadline elapses", func(t *testing.T) {
		link, _ := newTestLink(t)

		start := time.Now()
		_, err := link.ReadLine(start.Add(100 * time.Millisecond))
		require.ErrorIs(t, err, ErrTimeout)
		require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("transport failure", func(t *testing.T) {
		link, port := newTestLink(t)
		port.setReadErr(errors.New("device unplugged"))

		_, err := link.ReadLine(time.Now().Add(time.Second))
		require.ErrorIs(t, err, ErrLinkFailure)
	})

	t.Run("after close", func(t *testing.T) {
		link, _ := newTestLink(t)
		require.NoError(t, link.Close())

		_, err := link.ReadLine(time.Now().Add(time.Second))
		require.ErrorIs(t, err, ErrLinkClosed)
	})
}

func TestLinkClose(t *testing.T) {
	link, port := newTestLink(t)

	require.NoError(t, link.Close())
	require.True(t, port.closed)

	// idempotent
	require.NoError(t, link.Close())
}
