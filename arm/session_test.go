package arm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// openTestSession builds a session wired to a fake arm and drives the
// startup sequence the same way Session.Open does, minus the real device.
func openTestSession(t *testing.T, device *fakeArm, opts ...SessionOption) *Session {
	t.Helper()

	base := []SessionOption{
		WithCommandTimeout(200 * time.Millisecond),
		WithHomingTimeout(1 * time.Second),
		WithPollInterval(50 * time.Millisecond),
	}

	cfg, err := NewSessionConfig("/dev/fake", append(base, opts...)...)
	require.NoError(t, err)

	s, err := NewSession(context.Background(), cfg)
	require.NoError(t, err)

	s.opened.Store(true)
	link := newLink(device.port, cfg.PortPath(), cfg.GetLogger())
	s.link = link
	s.disp.link = link

	seq := newHealthSequencer(s.disp, s.state, s.cfg, &s.metrics)
	id, err := seq.run(context.Background())
	require.NoError(t, err)
	s.identity = id

	return s
}

func TestSessionLifecycle(t *testing.T) {
	device := newFakeArm(t)
	device.setPose(0, -100, 170, 0, 0, 0)

	s := openTestSession(t, device)
	defer s.Close()

	require.True(t, s.State().IsReady())
	require.Equal(t, "SN-1234", s.Identity().SerialNumber)
	require.Equal(t, "v2.1.0", s.Identity().FirmwareVersion)

	resp, err := s.Execute(context.Background(), QueryPose())
	require.NoError(t, err)
	require.True(t, resp.Ok())
	require.InDelta(t, -100, resp.Pose.Y, 1e-9)

	resp, err = s.ExecuteRaw(context.Background(), "M04 A1")
	require.NoError(t, err)
	require.True(t, resp.Ok())

	require.NoError(t, s.Monitor().Start())
	sub := s.Monitor().Subscribe(4)
	select {
	case sample := <-sub.Samples():
		require.False(t, sample.Missed)
	case <-time.After(2 * time.Second):
		t.Fatal("no monitor sample")
	}

	require.Greater(t, s.Metrics().CommandSendCount.Load(), uint64(0))

	require.NoError(t, s.Close())
	require.True(t, device.port.closed)
	require.False(t, s.Monitor().Running())

	// idempotent
	require.NoError(t, s.Close())
}

func TestSessionExecuteRawParseError(t *testing.T) {
	s := openTestSession(t, newFakeArm(t))
	defer s.Close()

	_, err := s.ExecuteRaw(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = s.ExecuteRaw(context.Background(), "FROB")
	require.ErrorIs(t, err, ErrInvalidOpcode)
}

func TestSessionOpenTwice(t *testing.T) {
	s := openTestSession(t, newFakeArm(t))
	defer s.Close()

	require.ErrorIs(t, s.Open(context.Background()), ErrSessionOpen)
}

func TestSessionOpenBadDevice(t *testing.T) {
	_, err := Open(context.Background(), "/definitely/not/a/serial/port")
	require.Error(t, err)
}

func TestNewSessionNilConfig(t *testing.T) {
	_, err := NewSession(context.Background(), nil)
	require.Error(t, err)
}

func TestSessionCloseNeverOpened(t *testing.T) {
	cfg, err := NewSessionConfig("/dev/fake")
	require.NoError(t, err)

	s, err := NewSession(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, s.Close())
}

func TestSessionCloseAfterFault(t *testing.T) {
	device := newFakeArm(t)
	s := openTestSession(t, device)

	s.state.ToFaulted()
	require.NoError(t, s.Close())

	_, err := s.Execute(context.Background(), QueryPose())
	require.ErrorIs(t, err, ErrSessionFaulted)
}
