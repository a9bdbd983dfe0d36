// =============================================================================
// SPACELOCK - CLIENT
// =============================================================================
// A minimal terminal client driving internal/netcode/client.Controller:
// a stand-in for a real input-capture/rendering front end. It reads
// single-character command keys from stdin and prints the leading
// snapshot's entity count on an interval, enough to exercise the full
// join/predict/reconcile/desync-recover path end to end without a
// renderer.
// =============================================================================
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"spacelock/internal/config"
	"spacelock/internal/netcode/client"
	"spacelock/internal/netcode/session"
	"spacelock/internal/netcode/sim"
	"spacelock/internal/spaceship"
)

func main() {
	root := &cobra.Command{
		Use:   "spacelock-client",
		Short: "Terminal client for the TSS simulation server",
		RunE:  runClient,
	}

	root.Flags().String("server", "", "server QUIC address, overrides SERVER_ADDR")

	if err := root.Execute(); err != nil {
		log.Fatalf("spacelock: %v", err)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	simCfg := config.SimFromEnv()
	clientCfg := config.ClientFromEnv()
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		clientCfg.ServerAddr = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conns, playerID, err := session.Dial(ctx, clientCfg.ServerAddr, session.ClientTLSConfig(), 256)
	if err != nil {
		return err
	}
	defer conns.Close()

	log.Printf("spacelock: connected to %s as player %d", clientCfg.ServerAddr, playerID)

	ctrl := client.New(conns, playerID, simCfg, clientCfg)
	if err := ctrl.RequestJoin(); err != nil {
		return err
	}

	input := &localShip{}
	go readCommands(ctx, stop, ctrl, playerID, input)

	ticker := time.NewTicker(time.Second / time.Duration(simCfg.TickRate))
	defer ticker.Stop()
	statusTicker := time.NewTicker(2 * time.Second)
	defer statusTicker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Println("spacelock: client shutting down")
			return nil
		case now := <-ticker.C:
			if err := ctrl.Update(now.Sub(last)); err != nil {
				log.Printf("spacelock: update error: %v", err)
			}
			last = now
		case <-statusTicker.C:
			printStatus(ctrl, playerID, input)
		}
	}
}

// localShip tracks the entity id of the local player's own ship, once
// resolved from the leading snapshot, for readCommands to address. It
// is written by printStatus and read by readCommands, the only state
// shared between this binary's two goroutines.
type localShip struct {
	mu   sync.Mutex
	id   sim.EntityID
	have bool
}

func (l *localShip) set(id sim.EntityID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id, l.have = id, true
}

func (l *localShip) get() (sim.EntityID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id, l.have
}

// printStatus resolves the local player's ship in the leading snapshot
// by OwnerPlayerID — the wire protocol never names "your" entity
// directly, so the client discovers it the same way any spectator
// would: by matching ownership on the snapshot it already has — and
// logs a one-line heartbeat.
func printStatus(ctrl *client.Controller, playerID int32, local *localShip) {
	snap := ctrl.Leading()
	count := 0
	snap.Each(func(e sim.Entity) {
		count++
		if ship, ok := e.(*spaceship.Ship); ok && ship.OwnerPlayerID == playerID {
			local.set(ship.ID())
		}
	})
	log.Printf("spacelock: frame=%d trailing=%d state=%s entities=%d hash=0x%08x",
		ctrl.LeadingFrame(), snap.Frame(), ctrl.State(), count, ctrl.SnapshotHash())
}

// readCommands turns simple stdin keystrokes into spaceship commands:
// w=thrust toggle, a/d=turn, s=center, f=fire, q=quit.
func readCommands(ctx context.Context, quit context.CancelFunc, ctrl *client.Controller, playerID int32, local *localShip) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("controls: w=thrust a=left d=right s=center f=fire q=quit")
	thrusting := false
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		shipID, have := local.get()
		if !have {
			continue
		}
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		frame := ctrl.LeadingFrame()
		var c sim.Command
		switch line[0] {
		case 'w':
			thrusting = !thrusting
			c = spaceship.NewThrustCommand(playerID, frame, shipID, thrusting)
		case 'a':
			c = spaceship.NewTurnCommand(playerID, frame, shipID, spaceship.TurnLeft)
		case 'd':
			c = spaceship.NewTurnCommand(playerID, frame, shipID, spaceship.TurnRight)
		case 's':
			c = spaceship.NewTurnCommand(playerID, frame, shipID, spaceship.TurnNone)
		case 'f':
			c = spaceship.NewFireCommand(playerID, frame, shipID)
		case 'q':
			quit()
			return
		default:
			continue
		}
		if err := ctrl.SubmitCommand(c.Kind, c.Payload); err != nil {
			log.Printf("spacelock: submit command failed: %v", err)
		}
	}
}
