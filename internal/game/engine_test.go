package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"egg-arena/internal/config"
	"egg-arena/internal/protocol"
)

type sent struct {
	To     string // empty for broadcasts
	Except string
	Latest bool
	Event  string
	Data   any
}

// recorder is a Broadcaster that keeps every frame for inspection.
type recorder struct {
	mu     sync.Mutex
	frames []sent
}

func (r *recorder) Send(connID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sent{To: connID, Event: event, Data: data})
}

func (r *recorder) Broadcast(event string, data any, except string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sent{Except: except, Event: event, Data: data})
}

func (r *recorder) BroadcastLatest(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sent{Latest: true, Event: event, Data: data})
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.Event
	}
	return out
}

func (r *recorder) last(event string) (sent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].Event == event {
			return r.frames[i], true
		}
	}
	return sent{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	cfg := config.DefaultWorld()
	cfg.Seed = 7
	rec := &recorder{}
	n := 0
	e := NewEngine(cfg, Options{
		Broadcaster: rec,
		Logger:      zaptest.NewLogger(t),
		IDGenerator: func() string {
			n++
			return fmt.Sprintf("n-%d", n)
		},
	})
	return e, rec
}

func equalEvents(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestNewEngineInitialState(t *testing.T) {
	e, _ := newTestEngine(t)

	snap := e.GetSnapshot()
	if snap == nil {
		t.Fatal("Expected an initial snapshot")
	}
	if len(snap.Nutrients) != 150 {
		t.Errorf("Expected 150 nutrients, got %d", len(snap.Nutrients))
	}
	if snap.PlayerCount() != 0 {
		t.Errorf("Expected no players, got %d", snap.PlayerCount())
	}
	if snap.Egg != (Point{X: 2500, Y: 2500}) {
		t.Errorf("Expected egg at centre, got %+v", snap.Egg)
	}
}

func TestEngineJoin(t *testing.T) {
	e, rec := newTestEngine(t)

	if err := e.join("c1", "Alice", ""); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := e.join("c2", "Bob", ""); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if got := rec.events(); !equalEvents(got, []string{
		protocol.MsgInit, protocol.MsgNewPlayer,
		protocol.MsgInit, protocol.MsgNewPlayer,
	}) {
		t.Fatalf("Unexpected frames %v", got)
	}

	init, _ := rec.last(protocol.MsgInit)
	if init.To != "c2" {
		t.Errorf("Expected init to c2, got %q", init.To)
	}
	payload := init.Data.(InitPayload)
	if payload.ID != "c2" || len(payload.Players) != 2 || len(payload.Nutrients) != 150 {
		t.Errorf("Unexpected init payload: id=%s players=%d nutrients=%d",
			payload.ID, len(payload.Players), len(payload.Nutrients))
	}
	if payload.Arena.Width != 5000 || len(payload.Leaderboard) != 2 {
		t.Errorf("Unexpected init arena/leaderboard: %+v %v", payload.Arena, payload.Leaderboard)
	}

	np, _ := rec.last(protocol.MsgNewPlayer)
	if np.Except != "c2" || np.Data.(PlayerPayload).Player.Name != "Bob" {
		t.Errorf("Expected newPlayer for Bob excluding c2, got %+v", np)
	}

	if err := e.join("c1", "Again", ""); !errors.Is(err, ErrPlayerExists) {
		t.Errorf("Expected ErrPlayerExists, got %v", err)
	}
}

func TestEngineMoveRejected(t *testing.T) {
	e, rec := newTestEngine(t)
	_ = e.join("c1", "Alice", "")
	p := e.players.Get("c1")
	x, y := p.X, p.Y
	rec.reset()

	e.move("c1", Proposal{X: x + 100, Y: y})

	if got := rec.events(); !equalEvents(got, []string{protocol.MsgInvalidMove}) {
		t.Fatalf("Expected only invalidMove, got %v", got)
	}
	f, _ := rec.last(protocol.MsgInvalidMove)
	if f.To != "c1" {
		t.Errorf("Expected invalidMove to c1, got %q", f.To)
	}
	if p.X != x || p.Y != y {
		t.Error("Rejected move changed position")
	}
}

func TestEngineMoveReachesEgg(t *testing.T) {
	e, rec := newTestEngine(t)
	_ = e.join("c1", "Alice", "")
	p := e.players.Get("c1")
	p.X, p.Y = e.world.Egg.X-33, e.world.Egg.Y
	rec.reset()

	e.move("c1", Proposal{X: e.world.Egg.X - 29, Y: e.world.Egg.Y})

	want := []string{
		protocol.MsgPlayerMoved,
		protocol.MsgPlayerUpdated,
		protocol.MsgLeaderboardUpdate,
		protocol.MsgReachEgg,
	}
	if got := rec.events(); !equalEvents(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	if p.Score != 100 {
		t.Errorf("Expected score 100, got %d", p.Score)
	}
	moved, _ := rec.last(protocol.MsgPlayerMoved)
	if moved.Except != "c1" {
		t.Errorf("Expected playerMoved to exclude mover, got %q", moved.Except)
	}
	reach, _ := rec.last(protocol.MsgReachEgg)
	if reach.To != "c1" {
		t.Errorf("Expected reachEgg to c1, got %q", reach.To)
	}
}

// TestEngineRejectsNonFiniteMove sends a msgpack move frame with NaN
// coordinates, which JSON cannot carry, through the full decode path.
func TestEngineRejectsNonFiniteMove(t *testing.T) {
	e, rec := newTestEngine(t)
	_ = e.join("c1", "Alice", "")
	p := e.players.Get("c1")
	x, y := p.X, p.Y

	frame, err := protocol.MsgPack.Encode(protocol.MsgMove, protocol.MovePayload{X: math.NaN(), Y: math.NaN()})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	env, err := protocol.MsgPack.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	var mp protocol.MovePayload
	if err := protocol.MsgPack.DecodeData(env, &mp); err != nil {
		t.Fatalf("DecodeData failed: %v", err)
	}
	if !math.IsNaN(mp.X) {
		t.Fatalf("Expected NaN to survive msgpack decoding, got %v", mp.X)
	}

	for i := 0; i < 3; i++ {
		rec.reset()
		e.move("c1", Proposal(mp))
		if got := rec.events(); !equalEvents(got, []string{protocol.MsgInvalidMove}) {
			t.Fatalf("Expected only invalidMove, got %v", got)
		}
	}
	if p.X != x || p.Y != y {
		t.Errorf("Expected position (%.1f, %.1f) unchanged, got (%v, %v)", x, y, p.X, p.Y)
	}
	if p.Score != 0 {
		t.Errorf("Expected no egg score, got %d", p.Score)
	}

	// A teleport from the rejected position is still caught by the speed check.
	e.move("c1", Proposal{X: 10, Y: 10})
	if p.X != x || p.Y != y {
		t.Error("Expected far move to be rejected")
	}
}

// TestEngineMissingPlayer checks handlers for unknown connections are no-ops.
func TestEngineMissingPlayer(t *testing.T) {
	e, rec := newTestEngine(t)
	nutrient := e.nutrients.List()[0]

	e.move("ghost", Proposal{X: 1, Y: 1})
	e.collect("ghost", nutrient.ID)
	e.leave("ghost")

	if got := rec.events(); len(got) != 0 {
		t.Errorf("Expected no frames, got %v", got)
	}
	if _, ok := e.nutrients.Get(nutrient.ID); !ok {
		t.Error("Nutrient removed by a missing player")
	}
}

func TestEngineCollectRejectedSilently(t *testing.T) {
	e, rec := newTestEngine(t)
	_ = e.join("c1", "Alice", "")
	rec.reset()

	e.collect("c1", "no-such-nutrient")

	far := e.nutrients.List()[0]
	p := e.players.Get("c1")
	p.X, p.Y = far.X+500, far.Y
	e.collect("c1", far.ID)

	if got := rec.events(); len(got) != 0 {
		t.Errorf("Expected no frames for rejected collects, got %v", got)
	}
	if p.Score != 0 {
		t.Errorf("Expected score unchanged, got %d", p.Score)
	}
}

func TestEngineTick(t *testing.T) {
	e, rec := newTestEngine(t)
	_ = e.join("a", "A", "")
	_ = e.join("b", "B", "")

	a, b := e.players.Get("a"), e.players.Get("b")
	a.X, a.Y, a.Size = 1000, 1000, 20
	b.X, b.Y, b.Size = 1010, 1000, 12

	// Drain to 80 so the tick has to replenish 20.
	for _, n := range e.nutrients.List()[:70] {
		e.nutrients.remove(n.ID)
	}
	rec.reset()

	e.tick()

	events := rec.events()
	added := 0
	for _, ev := range events[:20] {
		if ev == protocol.MsgNutrientUpdate {
			added++
		}
	}
	if added != 20 {
		t.Errorf("Expected 20 incremental nutrient updates first, got %d in %v", added, events)
	}

	rest := events[20:]
	want := []string{
		protocol.MsgPlayerUpdated,
		protocol.MsgPlayerUpdated,
		protocol.MsgNutrientUpdate,
		protocol.MsgLeaderboardUpdate,
	}
	if !equalEvents(rest, want) {
		t.Fatalf("Expected tail %v, got %v", want, rest)
	}

	full, _ := rec.last(protocol.MsgNutrientUpdate)
	if !full.Latest {
		t.Error("Expected full nutrient update to be coalescable")
	}
	if n := len(full.Data.(NutrientUpdate).FullUpdate); n != 100 {
		t.Errorf("Expected 100 nutrients in full update, got %d", n)
	}

	if a.Kills != 1 || b.Size != MinPlayerSize {
		t.Errorf("Expected a to absorb b, got kills=%d bsize=%.1f", a.Kills, b.Size)
	}

	snap := e.GetSnapshot()
	if snap.Tick != 1 || len(snap.Nutrients) != 100 {
		t.Errorf("Expected snapshot tick 1 with 100 nutrients, got %d/%d", snap.Tick, len(snap.Nutrients))
	}
}

// TestEngineTickPerPairUpdates checks a player absorbing twice in one sweep
// is broadcast with its state after each absorption.
func TestEngineTickPerPairUpdates(t *testing.T) {
	e, rec := newTestEngine(t)
	for _, id := range []string{"a", "b", "c"} {
		_ = e.join(id, id, "")
	}
	a, b, c := e.players.Get("a"), e.players.Get("b"), e.players.Get("c")
	a.X, a.Y, a.Size = 1000, 1000, 25
	b.X, b.Y, b.Size = 1010, 1000, 20
	c.X, c.Y, c.Size = 1000, 1010, 17.5
	rec.reset()

	e.tick()

	rec.mu.Lock()
	var updates []Player
	for _, f := range rec.frames {
		if f.Event == protocol.MsgPlayerUpdated {
			updates = append(updates, f.Data.(PlayerPayload).Player)
		}
	}
	rec.mu.Unlock()

	if len(updates) != 4 {
		t.Fatalf("Expected 4 playerUpdated frames, got %d", len(updates))
	}
	if updates[0].ID != "a" || updates[0].Kills != 1 {
		t.Errorf("Expected first frame a with 1 kill, got %s with %d", updates[0].ID, updates[0].Kills)
	}
	if updates[1].ID != "b" || updates[1].Size != MinPlayerSize {
		t.Errorf("Expected second frame respawned b, got %s size %.1f", updates[1].ID, updates[1].Size)
	}
	if updates[2].ID != "a" || updates[2].Kills != 2 {
		t.Errorf("Expected third frame a with 2 kills, got %s with %d", updates[2].ID, updates[2].Kills)
	}
	if updates[3].ID != "c" {
		t.Errorf("Expected fourth frame c, got %s", updates[3].ID)
	}
}

// TestEngineAliceScenario walks a full session for one player.
func TestEngineAliceScenario(t *testing.T) {
	e, rec := newTestEngine(t)

	if err := e.join("alice", "Alice", ""); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if e.players.Len() != 1 {
		t.Fatalf("Expected 1 player, got %d", e.players.Len())
	}
	lb := Top(e.players, 10)
	if len(lb) != 1 || lb[0].Name != "Alice" || lb[0].Score != 0 {
		t.Fatalf("Expected leaderboard [Alice:0], got %v", lb)
	}

	p := e.players.Get("alice")
	start := Point{X: p.X, Y: p.Y}
	e.move("alice", Proposal{X: start.X + 3, Y: start.Y + 4})
	if _, ok := rec.last(protocol.MsgPlayerMoved); !ok {
		t.Fatal("Expected playerMoved broadcast")
	}
	if p.X != start.X+3 || p.Y != start.Y+4 {
		t.Errorf("Expected position updated, got (%.2f, %.2f)", p.X, p.Y)
	}

	target := e.nutrients.List()[0]
	p.X, p.Y = target.X, target.Y
	e.collect("alice", target.ID)
	if p.Score != 10 || p.Size != 10.5 {
		t.Errorf("Expected score 10 size 10.5, got %d %.1f", p.Score, p.Size)
	}
	upd, ok := rec.last(protocol.MsgLeaderboardUpdate)
	if !ok {
		t.Fatal("Expected leaderboard update")
	}
	entries := upd.Data.([]LeaderboardEntry)
	if len(entries) != 1 || entries[0].Score != 10 {
		t.Errorf("Expected leaderboard [Alice:10], got %v", entries)
	}
	nu, _ := rec.last(protocol.MsgNutrientUpdate)
	if nu.Data.(NutrientUpdate).Removed != target.ID || nu.Data.(NutrientUpdate).Added == nil {
		t.Errorf("Expected removed+added nutrient update, got %+v", nu.Data)
	}

	e.leave("alice")
	if e.players.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", e.players.Len())
	}
	left, ok := rec.last(protocol.MsgPlayerLeft)
	if !ok || left.Data.(string) != "alice" {
		t.Errorf("Expected playerLeft for alice, got %+v", left)
	}
}

func TestEngineRunAndStop(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	if err := e.Join(ctx, "c1", protocol.JoinPayload{Name: "Alice"}); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := e.Join(ctx, "c1", protocol.JoinPayload{}); !errors.Is(err, ErrPlayerExists) {
		t.Errorf("Expected ErrPlayerExists, got %v", err)
	}
	if err := e.Move(ctx, "c1", protocol.MovePayload{X: -1000}); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if err := e.Submit(ctx, tickCommand{}); err != nil {
		t.Fatalf("Submit tick failed: %v", err)
	}
	e.Leave("c1")

	e.Stop()
	if err := <-errCh; err != nil {
		t.Errorf("Expected clean Run exit, got %v", err)
	}

	// Commands are applied in submission order.
	got := rec.events()
	if got[len(got)-2] != protocol.MsgPlayerLeft {
		t.Errorf("Expected playerLeft near the end, got %v", got)
	}
	if e.GetSnapshot().PlayerCount() != 0 {
		t.Error("Expected snapshot with no players after leave")
	}

	if err := e.Move(ctx, "c1", protocol.MovePayload{}); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("Expected ErrEngineStopped after Stop, got %v", err)
	}
	e.Stop()
	if err := e.Run(ctx); !errors.Is(err, ErrEngineRunning) {
		t.Errorf("Expected ErrEngineRunning on second Run, got %v", err)
	}
}

func TestEngineRunContextCancel(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestEngineConcurrentClients drives many connections at once and checks
// the world invariants hold in every published snapshot.
func TestEngineConcurrentClients(t *testing.T) {
	cfg := config.DefaultWorld()
	cfg.Seed = 11
	cfg.TickInterval = 5 * time.Millisecond
	e := NewEngine(cfg, Options{Logger: zaptest.NewLogger(t)})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := e.Join(ctx, id, protocol.JoinPayload{}); err != nil {
				t.Errorf("Join(%s) failed: %v", id, err)
				return
			}
			for step := 0; step < 50; step++ {
				snap := e.GetSnapshot()
				me, ok := snap.Player(id)
				if !ok {
					continue
				}
				_ = e.Move(ctx, id, protocol.MovePayload{X: me.X + 3, Y: me.Y - 3})
				if len(snap.Nutrients) > 0 {
					_ = e.Collect(ctx, id, snap.Nutrients[step%len(snap.Nutrients)].ID)
				}
			}
			e.Leave(id)
		}(fmt.Sprintf("conn-%02d", i))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			time.Sleep(20 * time.Millisecond)
			if n := e.GetSnapshot().PlayerCount(); n != 0 {
				t.Errorf("Expected all players gone, got %d", n)
			}
			return
		case <-ctx.Done():
			t.Fatal("timed out")
		default:
		}

		snap := e.GetSnapshot()
		if snap.Tick > 0 && len(snap.Nutrients) < 100 {
			t.Fatalf("Nutrient population %d below floor at tick %d", len(snap.Nutrients), snap.Tick)
		}
		for _, p := range snap.Players {
			if p.Size < MinPlayerSize || p.Size > MaxPlayerSize || p.Score < 0 {
				t.Fatalf("Invariant broken for %s: size=%.2f score=%d", p.ID, p.Size, p.Score)
			}
		}
		time.Sleep(time.Millisecond)
	}
}
