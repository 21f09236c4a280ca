package progress

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"btstrm/internal/mount"
)

func TestMonitorRendersParsedLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/abc/log.txt", []byte(
		"(udp://t:1)[x] received peers: 4\npiece: 0 finished downloading\n"), 0o644))

	var out bytes.Buffer
	m := NewMonitor(fs, func() (string, bool) { return "/data/abc/log.txt", true }, &out)
	m.cycle()

	require.True(t, strings.HasPrefix(out.String(), "\r"+strings.Repeat(" ", lineWidth)+"\r"))
	require.True(t, strings.HasSuffix(out.String(), "Peers: 4; Downloaded 1 pieces"))
	require.EqualValues(t, 1, m.Cycles())
}

func TestMonitorSkipsUntilLogExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	var out bytes.Buffer
	present := false
	m := NewMonitor(fs, func() (string, bool) { return "/log.txt", present }, &out)

	m.cycle()
	require.Empty(t, out.String())

	require.NoError(t, afero.WriteFile(fs, "/log.txt", []byte("piece: 3 finished downloading\n"), 0o644))
	present = true
	m.cycle()
	require.Contains(t, out.String(), "Downloaded 1 pieces")
}

func TestMonitorPlainWhenNotTerminal(t *testing.T) {
	m := NewMonitor(afero.NewMemMapFs(), func() (string, bool) { return "", false }, &bytes.Buffer{})
	line := m.Render(Stats{FirstPiece: true})
	require.Equal(t, "Peers: 0; Downloaded 0 pieces", line)
}

func TestMonitorStopsOnCancel(t *testing.T) {
	m := NewMonitor(afero.NewMemMapFs(), func() (string, bool) { return "", false }, &bytes.Buffer{},
		WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Cycles() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done

	after := m.Cycles()
	time.Sleep(25 * time.Millisecond)
	require.Equal(t, after, m.Cycles())
}

func TestMonitorNeverRunsWithCancelledContext(t *testing.T) {
	m := NewMonitor(afero.NewMemMapFs(), func() (string, bool) { return "", false }, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)
	require.Zero(t, m.Cycles())
}

func TestMonitorAttachedToSessionStopsBeforeCloseReturns(t *testing.T) {
	fs := afero.NewMemMapFs()
	manager := mount.NewManager(fs, nil, mount.Config{CacheDir: "/cache"}, nil)
	session := manager.NewSession("magnet:?xt=urn:btih:abc")

	m := NewMonitor(fs, session.LogPath, &bytes.Buffer{}, WithInterval(5*time.Millisecond))
	session.Attach(m.Run)
	require.Eventually(t, func() bool { return m.Cycles() >= 1 }, time.Second, time.Millisecond)

	require.NoError(t, session.Close(context.Background()))
	after := m.Cycles()
	time.Sleep(25 * time.Millisecond)
	require.Equal(t, after, m.Cycles())
}
