package conn

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/newtron/pkg/orchestrator/errs"
	"github.com/newtron-network/newtron/pkg/orchestrator/metrics"
	"github.com/newtron-network/newtron/pkg/orchestrator/model"
	"github.com/newtron-network/newtron/pkg/orchestrator/platform"
	"github.com/newtron-network/newtron/pkg/util"
)

type registryEntry struct {
	session  Session
	connType model.ConnectionType
}

// Manager is the Connection Manager (spec.md §4.2): a process-wide
// registry of live device sessions, keyed by device id, with one mutex
// per device so two concurrent connect attempts for the same device
// serialize instead of racing to open duplicate sockets. Generalizes
// the teacher's pkg/newtron/device.Device connect/lock pattern from a
// single-device struct into a fleet-wide registry.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*registryEntry

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager returns an empty Connection Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*registryEntry),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(deviceID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[deviceID] = l
	}
	return l
}

func (m *Manager) get(deviceID string) (*registryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[deviceID]
	return e, ok
}

func (m *Manager) put(deviceID string, e *registryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[deviceID] = e
	metrics.SessionsOpen.Set(float64(len(m.sessions)))
}

func (m *Manager) remove(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, deviceID)
	metrics.SessionsOpen.Set(float64(len(m.sessions)))
}

// IsConnected reports whether a live session is registered for deviceID.
func (m *Manager) IsConnected(deviceID string) bool {
	_, ok := m.get(deviceID)
	return ok
}

// Connect opens (or reuses) a session to device, dialing through the
// jumphost when jh is enabled. Idempotent: a device already connected
// returns its existing connection type without redialing.
func (m *Manager) Connect(ctx context.Context, device model.Device, password string, jh *model.JumphostConfig, jhPassword string, connectTimeout, readTimeout time.Duration) (model.ConnectionType, error) {
	lock := m.lockFor(device.ID)
	lock.Lock()
	defer lock.Unlock()

	if e, ok := m.get(device.ID); ok {
		return e.connType, nil
	}

	port := device.Port
	if port == 0 {
		port = defaultPortFor(device.Transport)
	}
	addr := fmt.Sprintf("%s:%d", device.Host, port)

	session, connType, err := m.dial(ctx, device, addr, password, jh, jhPassword, connectTimeout, readTimeout)
	if err != nil {
		metrics.DeviceConnectFailuresTotal.Inc()
		return "", err
	}

	if driver := session.Driver(); driver.DisablePagingCommand != "" {
		if _, err := session.Send(ctx, driver.DisablePagingCommand, readTimeout); err != nil {
			session.Close()
			metrics.DeviceConnectFailuresTotal.Inc()
			return "", errs.NewTransport(device.ID, "", "disabling paging: "+err.Error())
		}
	}

	m.put(device.ID, &registryEntry{session: session, connType: connType})
	util.WithDevice(device.ID).WithField("connection_type", connType).Info("device connected")
	return connType, nil
}

func (m *Manager) dial(ctx context.Context, device model.Device, addr, password string, jh *model.JumphostConfig, jhPassword string, connectTimeout, readTimeout time.Duration) (Session, model.ConnectionType, error) {
	connType := model.ConnectionReal

	switch device.Transport {
	case model.TransportTelnet:
		var viaDial func(context.Context, string, string) (net.Conn, error)
		if jh != nil && jh.Enabled {
			jhClient, err := m.dialJumphost(ctx, *jh, jhPassword, connectTimeout)
			if err != nil {
				return nil, "", err
			}
			viaDial = jhClient.DialContext
			connType = model.ConnectionJumphosted
		}

		nc, err := dialTelnet(ctx, addr, connectTimeout, viaDial)
		if err != nil {
			return nil, "", errs.NewTransport(device.ID, "", "telnet dial: "+err.Error())
		}

		driver := platform.Driver{}
		if device.Platform != model.PlatformAuto {
			driver = platform.For(device.Platform)
		}
		ts := newTelnetSession(nc, driver)
		if err := ts.login(ctx, device.Username, password, connectTimeout); err != nil {
			ts.Close()
			return nil, "", errs.NewAuth(device.ID, err.Error())
		}
		if device.Platform == model.PlatformAuto {
			if err := detectAndSet(ctx, ts, readTimeout); err != nil {
				ts.Close()
				return nil, "", err
			}
		}
		return ts, connType, nil

	default: // TransportSSH and unset
		var via *ssh.Client
		if jh != nil && jh.Enabled {
			jhClient, err := m.dialJumphost(ctx, *jh, jhPassword, connectTimeout)
			if err != nil {
				return nil, "", err
			}
			via = jhClient
			connType = model.ConnectionJumphosted
		}

		client, err := dialSSH(ctx, addr, device.Username, password, connectTimeout, via)
		if err != nil {
			return nil, "", errs.NewAuth(device.ID, err.Error())
		}

		driver := platform.Driver{}
		if device.Platform != model.PlatformAuto {
			driver = platform.For(device.Platform)
		}
		sess, err := newSSHSession(client, driver)
		if err != nil {
			return nil, "", errs.NewTransport(device.ID, "", err.Error())
		}
		if device.Platform == model.PlatformAuto {
			if err := detectAndSet(ctx, sess, readTimeout); err != nil {
				sess.Close()
				return nil, "", err
			}
		}
		return sess, connType, nil
	}
}

// detectAndSet runs a platform-identifying command and fixes the
// session's driver from the response banner. Used only for
// model.PlatformAuto devices; explicit platforms skip the round trip.
func detectAndSet(ctx context.Context, s Session, readTimeout time.Duration) error {
	banner, err := s.Send(ctx, "show version", readTimeout)
	if err != nil {
		return errs.NewTransport("", "", "platform auto-detection: "+err.Error())
	}
	driver := platform.Detect(banner)
	switch typed := s.(type) {
	case *sshSession:
		typed.setDriver(driver)
	case *telnetSession:
		typed.setDriver(driver)
	}
	return nil
}

func (m *Manager) dialJumphost(ctx context.Context, jh model.JumphostConfig, password string, timeout time.Duration) (*ssh.Client, error) {
	port := jh.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", jh.Host, port)
	client, err := dialSSH(ctx, addr, jh.Username, password, timeout, nil)
	if err != nil {
		return nil, errs.NewJumphostProbe(err.Error())
	}
	return client, nil
}

func defaultPortFor(t model.Transport) int {
	if t == model.TransportTelnet {
		return 23
	}
	return 22
}

// Send dispatches a command to an already-connected device's session.
func (m *Manager) Send(ctx context.Context, deviceID, command string, readTimeout time.Duration) (string, error) {
	e, ok := m.get(deviceID)
	if !ok {
		return "", errs.NewTransport(deviceID, "", "not connected")
	}
	return e.session.Send(ctx, command, readTimeout)
}

// Driver returns the platform driver an already-connected device
// resolved to (useful once auto-detection has run).
func (m *Manager) Driver(deviceID string) (platform.Driver, bool) {
	e, ok := m.get(deviceID)
	if !ok {
		return platform.Driver{}, false
	}
	return e.session.Driver(), true
}

// Disconnect closes and deregisters a device's session. Idempotent.
func (m *Manager) Disconnect(deviceID string) error {
	lock := m.lockFor(deviceID)
	lock.Lock()
	defer lock.Unlock()

	e, ok := m.get(deviceID)
	if !ok {
		return nil
	}
	m.remove(deviceID)
	return e.session.Close()
}

// DisconnectAll tears down every live session, collecting (not failing
// fast on) individual close errors — used at batch end and on shutdown.
func (m *Manager) DisconnectAll() []error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errList []error
	for _, id := range ids {
		if err := m.Disconnect(id); err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errList
}
