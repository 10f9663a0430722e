package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"egg-arena/internal/config"
	"egg-arena/internal/metrics"
	"egg-arena/internal/protocol"
)

const defaultInboxSize = 256

var (
	// ErrEngineStopped is returned when submitting to an engine that has shut down.
	ErrEngineStopped = errors.New("game: engine stopped")
	// ErrEngineRunning is returned when Run is called twice.
	ErrEngineRunning = errors.New("game: engine already running")
)

// Options wires the engine's collaborators. Zero values are usable.
type Options struct {
	Broadcaster Broadcaster
	Logger      *zap.Logger
	EventLog    *EventLog
	InboxSize   int
	IDGenerator func() string // nutrient ids; defaults to uuid
}

// Engine owns all mutable world state. Every join, move, collection,
// disconnect and tick runs as one unit of work on the Run goroutine, so the
// registry and nutrient field are never touched concurrently.
type Engine struct {
	world     World
	rng       *rand.Rand
	players   *Registry
	nutrients *NutrientField

	out    Broadcaster
	log    *zap.Logger
	events *EventLog

	inbox    chan Command
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	tickCount uint64
	snapshot  atomic.Pointer[Snapshot]
}

// NewEngine builds an engine with a fully populated nutrient field.
func NewEngine(cfg config.WorldConfig, opts Options) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	w := NewWorld(cfg)

	if opts.Broadcaster == nil {
		opts.Broadcaster = nopBroadcaster{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}

	e := &Engine{
		world:     w,
		rng:       rng,
		players:   NewRegistry(w, rng),
		nutrients: NewNutrientField(w, rng, opts.IDGenerator),
		out:       opts.Broadcaster,
		log:       opts.Logger.Named("engine"),
		events:    opts.EventLog,
		inbox:     make(chan Command, opts.InboxSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.nutrients.Initialize()
	e.publish()

	e.log.Info("world initialized",
		zap.Int64("seed", seed),
		zap.Int("nutrients", e.nutrients.Len()),
		zap.Duration("tick", cfg.TickInterval))
	return e
}

// World returns the engine's immutable geometry and rules.
func (e *Engine) World() World {
	return e.world
}

// Run processes commands and ticks until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer close(e.done)

	ticker := time.NewTicker(e.world.Rules.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-e.inbox:
			cmd.apply(e)
		case <-ticker.C:
			e.tick()
		case <-e.quit:
			e.drain()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drain applies commands queued before Stop.
func (e *Engine) drain() {
	for {
		select {
		case cmd := <-e.inbox:
			cmd.apply(e)
		default:
			return
		}
	}
}

// Start runs the engine on its own goroutine.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Error("engine stopped", zap.Error(err))
		}
	}()
}

// Stop ends Run and waits for the current unit of work to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
	})
	if e.started.Load() {
		<-e.done
	}
}

// Submit queues a command. It blocks while the inbox is full.
func (e *Engine) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-e.quit:
		return ErrEngineStopped
	default:
	}
	select {
	case e.inbox <- cmd:
		return nil
	case <-e.quit:
		return ErrEngineStopped
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join spawns a player for connID and waits for the result.
func (e *Engine) Join(ctx context.Context, connID string, jp protocol.JoinPayload) error {
	reply := make(chan error, 1)
	if err := e.Submit(ctx, JoinCommand{ConnID: connID, Name: jp.Name, Color: jp.Color, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Move queues a movement proposal.
func (e *Engine) Move(ctx context.Context, connID string, mp protocol.MovePayload) error {
	return e.Submit(ctx, MoveCommand{ConnID: connID, Proposal: Proposal(mp)})
}

// Collect queues a nutrient collection attempt.
func (e *Engine) Collect(ctx context.Context, connID, nutrientID string) error {
	return e.Submit(ctx, CollectCommand{ConnID: connID, NutrientID: nutrientID})
}

// Leave queues removal of connID's player. It only gives up once the
// engine has stopped.
func (e *Engine) Leave(connID string) {
	_ = e.Submit(context.Background(), LeaveCommand{ConnID: connID})
}

// GetSnapshot returns the latest published world copy. Safe from any goroutine.
func (e *Engine) GetSnapshot() *Snapshot {
	return e.snapshot.Load()
}

// Stats reports engine health for monitoring endpoints.
type Stats struct {
	Tick       uint64        `json:"tick"`
	Players    int           `json:"players"`
	Nutrients  int           `json:"nutrients"`
	InboxDepth int           `json:"inboxDepth"`
	EventLog   EventLogStats `json:"eventLog"`
}

// Stats is safe from any goroutine.
func (e *Engine) Stats() Stats {
	snap := e.GetSnapshot()
	return Stats{
		Tick:       snap.Tick,
		Players:    snap.PlayerCount(),
		Nutrients:  len(snap.Nutrients),
		InboxDepth: len(e.inbox),
		EventLog:   e.events.Stats(),
	}
}

// =============================================================================
// UNITS OF WORK (engine goroutine only)
// =============================================================================

func (e *Engine) join(connID, name, color string) error {
	p, err := e.players.Join(connID, name, color)
	if err != nil {
		return err
	}

	e.out.Send(connID, protocol.MsgInit, e.initPayload(connID))
	e.out.Broadcast(protocol.MsgNewPlayer, playerPayload(p), connID)

	e.events.EmitSimple(EventTypePlayerJoin, e.tickCount, connID, PlayerJoinPayload{
		PlayerID: p.ID, PlayerName: p.Name, SpawnX: p.X, SpawnY: p.Y, Color: p.Color,
	})
	e.log.Info("player joined", zap.String("id", connID), zap.String("name", p.Name))
	e.publish()
	return nil
}

func (e *Engine) move(connID string, prop Proposal) {
	p := e.players.Get(connID)
	if p == nil {
		return
	}

	res := TryMove(e.world, p, prop)
	metrics.RecordMove(res.Accepted)
	if !res.Accepted {
		e.out.Send(connID, protocol.MsgInvalidMove, nil)
		return
	}
	e.out.Broadcast(protocol.MsgPlayerMoved, playerPayload(p), connID)

	if CheckEgg(e.world, p) {
		metrics.IncEggReached()
		e.out.Broadcast(protocol.MsgPlayerUpdated, playerPayload(p), "")
		e.broadcastLeaderboard()
		e.out.Send(connID, protocol.MsgReachEgg, nil)
		e.events.EmitSimple(EventTypeEgg, e.tickCount, connID, EggPayload{PlayerID: connID, Score: p.Score})
	}
}

func (e *Engine) collect(connID, nutrientID string) {
	p := e.players.Get(connID)
	if p == nil {
		return
	}

	res, err := e.nutrients.Collect(p, nutrientID)
	if err != nil {
		e.log.Debug("collect rejected",
			zap.String("id", connID),
			zap.String("nutrient", nutrientID),
			zap.Error(err))
		return
	}
	metrics.IncNutrientCollected()

	e.out.Broadcast(protocol.MsgNutrientUpdate, NutrientUpdate{Removed: res.Removed, Added: &res.Added}, "")
	e.out.Broadcast(protocol.MsgPlayerUpdated, playerPayload(p), "")
	e.broadcastLeaderboard()

	e.events.EmitSimple(EventTypeCollect, e.tickCount, connID, CollectPayload{
		PlayerID: connID, NutrientID: nutrientID, Score: p.Score, Size: p.Size,
	})
	e.publish()
}

func (e *Engine) leave(connID string) {
	p := e.players.Get(connID)
	if p == nil {
		return
	}
	score := p.Score
	e.players.Leave(connID)

	e.out.Broadcast(protocol.MsgPlayerLeft, connID, "")
	e.broadcastLeaderboard()

	e.events.EmitSimple(EventTypePlayerLeave, e.tickCount, connID, PlayerLeavePayload{PlayerID: connID, Score: score})
	e.log.Info("player left", zap.String("id", connID), zap.Int("score", score))
	e.publish()
}

// tick runs jitter, replenish, the collision sweep and the full broadcasts.
func (e *Engine) tick() {
	start := time.Now()
	e.tickCount++

	e.nutrients.Jitter()

	added := e.nutrients.Replenish()
	for i := range added {
		e.out.Broadcast(protocol.MsgNutrientUpdate, NutrientUpdate{Added: &added[i]}, "")
	}

	outcomes := Sweep(e.players, e.world, e.rng)
	for _, o := range outcomes {
		winner, loser := o.Winner, o.Loser
		e.out.Broadcast(protocol.MsgPlayerUpdated, playerPayload(&winner), "")
		e.out.Broadcast(protocol.MsgPlayerUpdated, playerPayload(&loser), "")
		metrics.IncKill()

		e.events.EmitSimple(EventTypeKill, e.tickCount, o.WinnerID, KillPayload{
			KillerID:    o.WinnerID,
			VictimID:    o.LoserID,
			KillerKills: winner.Kills,
			KillerScore: winner.Score,
			VictimScore: loser.Score,
		})
		e.events.EmitSimple(EventTypeRespawn, e.tickCount, o.LoserID, RespawnPayload{
			PlayerID: o.LoserID, SpawnX: o.SpawnX, SpawnY: o.SpawnY,
		})
	}

	e.out.BroadcastLatest(protocol.MsgNutrientUpdate, NutrientUpdate{FullUpdate: e.nutrients.List()})
	e.broadcastLeaderboard()

	elapsed := time.Since(start)
	metrics.RecordTick(elapsed)
	metrics.SetWorldSize(e.players.Len(), e.nutrients.Len())
	e.events.EmitSimple(EventTypeTick, e.tickCount, "", TickPayload{
		PlayerCount:   e.players.Len(),
		NutrientCount: e.nutrients.Len(),
		Replenished:   len(added),
		Absorptions:   len(outcomes),
		DurationNs:    elapsed.Nanoseconds(),
	})
	if len(outcomes) > 0 {
		e.log.Debug("tick resolved absorptions",
			zap.Uint64("tick", e.tickCount),
			zap.Int("count", len(outcomes)))
	}
	e.publish()
}

func (e *Engine) broadcastLeaderboard() {
	e.out.Broadcast(protocol.MsgLeaderboardUpdate, Top(e.players, e.world.Rules.LeaderboardSize), "")
}

func (e *Engine) initPayload(connID string) InitPayload {
	all := e.players.All()
	players := make(map[string]Player, len(all))
	for id, p := range all {
		players[id] = *p
	}
	return InitPayload{
		ID:          connID,
		Players:     players,
		Nutrients:   e.nutrients.List(),
		Egg:         e.world.Egg,
		Leaderboard: Top(e.players, e.world.Rules.LeaderboardSize),
		Arena:       e.world.Arena,
	}
}

func (e *Engine) publish() {
	e.snapshot.Store(takeSnapshot(e.tickCount, e.world, e.players, e.nutrients, e.world.Rules.LeaderboardSize))
}
