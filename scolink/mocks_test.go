package scolink

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-hfsco/bdaddr"
)

var testPeer = bdaddr.MustParse("00:1A:7D:DA:71:13")

type mockController struct {
	mock.Mock
}

func (m *mockController) CreateLink(peer bdaddr.Address, originate bool, packetTypes PacketType, events LinkEvents) (LinkHandle, error) {
	args := m.Called(peer, originate, packetTypes, events)
	return args.Get(0).(LinkHandle), args.Error(1)
}

func (m *mockController) RemoveLink(h LinkHandle) (bool, error) {
	args := m.Called(h)
	return args.Bool(0), args.Error(1)
}

func (m *mockController) SetLinkModeParameters(linkType LinkType, params Params) error {
	return m.Called(linkType, params).Error(0)
}

func (m *mockController) RegisterConnectionRequestHandler(h LinkHandle, handler ConnectionRequestHandler) error {
	return m.Called(h, handler).Error(0)
}

func (m *mockController) RespondConnectionRequest(h LinkHandle, status HCIStatus, params Params) error {
	return m.Called(h, status, params).Error(0)
}

type mockArbiter struct {
	mock.Mock
}

func (m *mockArbiter) NotifyInUse(profile ProfileID, peer bdaddr.Address)    { m.Called(profile, peer) }
func (m *mockArbiter) NotifyOpen(profile ProfileID, peer bdaddr.Address)     { m.Called(profile, peer) }
func (m *mockArbiter) NotifyClose(profile ProfileID, peer bdaddr.Address)    { m.Called(profile, peer) }
func (m *mockArbiter) NotifyReleased(profile ProfileID, peer bdaddr.Address) { m.Called(profile, peer) }

// allowAll accepts any notification.
func (m *mockArbiter) allowAll() *mockArbiter {
	for _, method := range []string{"NotifyInUse", "NotifyOpen", "NotifyClose", "NotifyReleased"} {
		m.On(method, mock.Anything, mock.Anything).Return()
	}
	return m
}

type fakeSignaling struct {
	mu        sync.Mutex
	connected bool
	closes    int
}

func (f *fakeSignaling) ServiceLevelConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSignaling) RequestClose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeSignaling) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type audioRecorder struct {
	mu     sync.Mutex
	events []AudioEvent
}

func (r *audioRecorder) handle(ev AudioEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *audioRecorder) all() []AudioEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AudioEvent(nil), r.events...)
}

type harness struct {
	session *Session
	ctrl    *mockController
	arbiter *mockArbiter
	slc     *fakeSignaling
	audio   *audioRecorder
}

func newHarness(t *testing.T, peerVersion uint16, codec Codec) *harness {
	t.Helper()

	h := &harness{
		ctrl:    &mockController{},
		arbiter: (&mockArbiter{}).allowAll(),
		slc:     &fakeSignaling{connected: true},
		audio:   &audioRecorder{},
	}

	s, err := NewSession(Options{
		Peer:        testPeer,
		PeerVersion: peerVersion,
		Codec:       codec,
		Controller:  h.ctrl,
		Signaling:   h.slc,
		Arbiter:     h.arbiter,
		OnAudio:     h.audio.handle,
	})
	require.NoError(t, err)
	h.session = s

	return h
}

func (h *harness) expectPassiveCreate(handle LinkHandle) {
	h.ctrl.On("CreateLink", testPeer, false, ParamsESCOCVSD.PacketTypes, mock.Anything).Return(handle, nil).Once()
	h.ctrl.On("RegisterConnectionRequestHandler", handle, mock.Anything).Return(nil).Once()
}

func (h *harness) expectOriginate(linkType LinkType, params Params, handle LinkHandle) {
	h.ctrl.On("SetLinkModeParameters", linkType, params).Return(nil).Once()
	h.ctrl.On("CreateLink", testPeer, true, params.PacketTypes, mock.Anything).Return(handle, nil).Once()
}

func (h *harness) expectRemove(handle LinkHandle, pending bool) {
	h.ctrl.On("RemoveLink", handle).Return(pending, nil).Once()
}

// listening brings the session to Listening on a passive link.
func (h *harness) listening(handle LinkHandle) {
	h.expectPassiveCreate(handle)
	h.session.Listen()
}
