package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cyberinferno/go-hfsco/scolink"
	"github.com/cyberinferno/go-hfsco/simctl"
)

// scenario connects the peer, opens and closes an outgoing link, accepts an
// incoming one, drops it, and disconnects.
func (st *stack) scenario(ctx context.Context) error {
	peer := st.cfg.PeerAddress()
	slc := simctl.NewSLC()

	printStep("connect %s", peer)
	entry, err := st.mgr.Connect(ctx, peer, slc)
	if err != nil {
		return err
	}
	a := entry.Agent
	if _, err := st.await(ctx, a, scolink.StateListening); err != nil {
		return err
	}

	printStep("open audio")
	if err := a.Open(ctx); err != nil {
		return err
	}
	snap, err := st.await(ctx, a, scolink.StateOpen)
	if err != nil {
		return err
	}
	if info, ok := st.ctrl.Link(snap.Handle); ok {
		printInfo("link %s is %s with packet types 0x%04x", info.Handle, info.LinkType, uint16(info.PacketTypes))
	}

	printStep("close audio")
	if err := a.CloseAudio(ctx); err != nil {
		return err
	}
	if _, err := st.await(ctx, a, scolink.StateListening); err != nil {
		return err
	}

	printStep("incoming eSCO from the peer")
	h, err := st.ctrl.InjectIncoming(peer, scolink.LinkTypeESCO)
	if err != nil {
		return err
	}
	if _, err := st.await(ctx, a, scolink.StateOpen); err != nil {
		return err
	}

	printStep("radio drops link %s", h)
	if err := st.ctrl.DropLink(h); err != nil {
		return err
	}
	if _, err := st.await(ctx, a, scolink.StateListening); err != nil {
		return err
	}

	printStep("disconnect")
	if err := st.mgr.Disconnect(ctx, peer); err != nil {
		return err
	}
	if err := st.dir.Forget(ctx, peer); err != nil {
		printWarn(fmt.Sprintf("forget %s: %v", peer, err))
	}
	if st.bus.Busy() {
		printWarn("audio still claimed after disconnect")
	}

	printStep("done")
	return nil
}

// await polls a until it reaches want.
func (st *stack) await(ctx context.Context, a *scolink.Agent, want scolink.State) (scolink.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second+20*st.cfg.Sim.Latency)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap, err := a.Snapshot(ctx)
		if err != nil {
			return snap, err
		}
		if snap.State == want {
			printState(snap)
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, fmt.Errorf("waiting for %s, still %s: %w", want, snap.State, ctx.Err())
		case <-ticker.C:
		}
	}
}
