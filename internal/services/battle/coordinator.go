package battle

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/clock"
	"github.com/quizbattle/quizbattle-go/internal/dependencies/scheduler"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/services/question"
	"github.com/quizbattle/quizbattle-go/internal/services/room"
	"github.com/quizbattle/quizbattle-go/internal/services/scoring"
	"github.com/quizbattle/quizbattle-go/internal/store"
)

// Broadcaster delivers a message to every connected member of a room
type Broadcaster interface {
	Broadcast(roomID model.RoomID, msg model.Message)
}

// Enqueuer appends deferred durable work
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType model.TaskType, payload any, priority int)
}

// Config holds timing configuration for the battle coordinator
type Config struct {
	// InstanceID identifies this process for room ownership leases
	InstanceID string
	// StartDelay is the pause between all-ready and the first question
	StartDelay time.Duration
	// QuestionPause is the pause between questions within a round
	QuestionPause time.Duration
	// RoundPause is the pause between rounds
	RoundPause time.Duration
	// OwnerLeaseTTL bounds how long a crashed owner blocks a room
	OwnerLeaseTTL time.Duration
}

// DefaultConfig returns default battle timing configuration
func DefaultConfig() Config {
	return Config{
		StartDelay:    5 * time.Second,
		QuestionPause: 3 * time.Second,
		RoundPause:    5 * time.Second,
		OwnerLeaseTTL: 30 * time.Second,
	}
}

// game is the coordinator's in-memory state for one active room. Only
// the lease-holding instance has one; everything a remote instance
// might need lives in the fast store instead.
type game struct {
	settings    model.RoomSettings
	round       int
	questionNo  int
	question    *model.Question
	questionAt  time.Time
	timeLimitMs int64
	accepting   bool
	results     map[model.UserID]model.QuestionResult
}

// Coordinator drives the battle state machine for the rooms this
// instance owns. All transitions run under the per-room ownership
// lease; timer callbacks re-check the lease before acting so a room
// migrated to another instance goes quiet here.
type Coordinator struct {
	store     store.Store
	rooms     *room.Service
	questions *question.Service
	scoring   *scoring.Service
	clock     clock.Clock
	scheduler scheduler.Scheduler
	enqueuer  Enqueuer
	cfg       Config
	logger    *slog.Logger

	mu    sync.Mutex
	games map[model.RoomID]*game

	broadcaster Broadcaster
}

// New creates a new battle coordinator
func New(
	st store.Store,
	rooms *room.Service,
	questions *question.Service,
	scoringSvc *scoring.Service,
	clk clock.Clock,
	sched scheduler.Scheduler,
	enqueuer Enqueuer,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	def := DefaultConfig()
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = def.StartDelay
	}
	if cfg.QuestionPause <= 0 {
		cfg.QuestionPause = def.QuestionPause
	}
	if cfg.RoundPause <= 0 {
		cfg.RoundPause = def.RoundPause
	}
	if cfg.OwnerLeaseTTL <= 0 {
		cfg.OwnerLeaseTTL = def.OwnerLeaseTTL
	}
	return &Coordinator{
		store:     st,
		rooms:     rooms,
		questions: questions,
		scoring:   scoringSvc,
		clock:     clk,
		scheduler: sched,
		enqueuer:  enqueuer,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "battle")),
		games:     make(map[model.RoomID]*game),
	}
}

// SetBroadcaster wires the outbound fanout. Must be called before any
// gameplay handler; split from New because the hub needs the
// coordinator for inbound routing too.
func (c *Coordinator) SetBroadcaster(b Broadcaster) {
	c.broadcaster = b
}

// Phase returns the room's current game phase from the fast store
func (c *Coordinator) Phase(ctx context.Context, roomID model.RoomID) (model.GamePhase, error) {
	return c.store.GetGamePhase(ctx, roomID)
}

// Snapshot assembles the room's transient game record from the fast
// store, for catching up a freshly attached connection.
func (c *Coordinator) Snapshot(ctx context.Context, roomID model.RoomID) (*model.GameSnapshot, error) {
	phase, err := c.store.GetGamePhase(ctx, roomID)
	if err != nil {
		return nil, err
	}
	round, err := c.store.GetRound(ctx, roomID)
	if err != nil {
		return nil, err
	}
	questionID, questionStart, err := c.store.CurrentQuestion(ctx, roomID)
	if err != nil {
		return nil, err
	}
	answers, err := c.store.Answers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	scores, err := c.store.Scores(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &model.GameSnapshot{
		Phase:         phase,
		Round:         round,
		QuestionID:    questionID,
		QuestionStart: questionStart,
		Answers:       answers,
		Scores:        scores,
	}, nil
}

// HandleReady marks a player ready and starts the battle once every
// member of a room with at least two players is ready.
func (c *Coordinator) HandleReady(ctx context.Context, roomID model.RoomID, userID model.UserID) error {
	if err := c.rooms.SetPlayerReady(ctx, roomID, userID, true); err != nil {
		return err
	}

	ready, err := c.rooms.AreAllPlayersReady(ctx, roomID)
	if err != nil {
		return err
	}
	if !ready {
		return nil
	}
	return c.startGame(ctx, roomID)
}

// HandleAnswer records a player's answer to the current question.
// Answers outside the QUESTION phase and duplicate submissions are
// dropped silently; clients racing a phase transition are expected.
func (c *Coordinator) HandleAnswer(ctx context.Context, roomID model.RoomID, userID model.UserID, selectedOption string) error {
	c.mu.Lock()
	g, ok := c.games[roomID]
	if !ok || !g.accepting || g.question == nil {
		c.mu.Unlock()
		c.logger.Debug("ignoring stale answer",
			slog.String("room_id", string(roomID)),
			slog.String("user_id", string(userID)))
		return nil
	}
	q := g.question
	timeTaken := c.clock.Now().Sub(g.questionAt).Milliseconds()
	if timeTaken > g.timeLimitMs {
		timeTaken = g.timeLimitMs
	}
	round, questionNo := g.round, g.questionNo
	timeLimitMs := g.timeLimitMs
	c.mu.Unlock()

	first, err := c.store.RecordAnswerTime(ctx, roomID, userID, timeTaken)
	if err != nil {
		return err
	}
	if !first {
		c.logger.Debug("ignoring duplicate answer",
			slog.String("room_id", string(roomID)),
			slog.String("user_id", string(userID)))
		return nil
	}

	correct := selectedOption == q.CorrectOption
	score := c.scoring.Score(q.Difficulty, timeTaken, timeLimitMs, correct)
	if score > 0 {
		if err := c.store.IncrScore(ctx, roomID, userID, score); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if g, ok := c.games[roomID]; ok && g.round == round && g.questionNo == questionNo {
		g.results[userID] = model.QuestionResult{
			UserID:      userID,
			Correct:     correct,
			TimeTakenMs: timeTaken,
			Score:       score,
		}
	}
	c.mu.Unlock()

	c.enqueuer.Enqueue(ctx, model.TaskAnswer, model.AnswerTaskPayload{
		RoomID:         roomID,
		UserID:         userID,
		QuestionID:     q.ID,
		Round:          round,
		SelectedOption: selectedOption,
		Correct:        correct,
		TimeTakenMs:    timeTaken,
		Score:          score,
		Timestamp:      c.clock.Now().UnixMilli(),
	}, 0)

	c.maybeEndEarly(ctx, roomID, round, questionNo)
	return nil
}

// HandleLeave processes a voluntary leave
func (c *Coordinator) HandleLeave(ctx context.Context, roomID model.RoomID, userID model.UserID) error {
	return c.playerGone(ctx, roomID, userID)
}

// HandleDisconnect processes a dropped connection. Identical to a
// voluntary leave; disconnected players forfeit their seat.
func (c *Coordinator) HandleDisconnect(ctx context.Context, roomID model.RoomID, userID model.UserID) error {
	return c.playerGone(ctx, roomID, userID)
}

func (c *Coordinator) playerGone(ctx context.Context, roomID model.RoomID, userID model.UserID) error {
	count, err := c.rooms.LeaveRoom(ctx, userID, roomID)
	if err != nil {
		return err
	}
	c.broadcast(roomID, model.NewMessage(model.EventPlayerLeft, model.PlayerLeftPayload{UserID: userID}))

	c.mu.Lock()
	_, inGame := c.games[roomID]
	c.mu.Unlock()

	if inGame && count < 2 {
		c.endGame(ctx, roomID, model.EndReasonNotEnough)
	}
	return nil
}

// startGame acquires the room's ownership lease and begins the battle.
// Losing the lease race means another instance is already driving the
// room; this instance stays quiet.
func (c *Coordinator) startGame(ctx context.Context, roomID model.RoomID) error {
	acquired, err := c.store.AcquireRoomOwner(ctx, roomID, c.cfg.InstanceID, c.cfg.OwnerLeaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		c.logger.Debug("room owned by another instance", slog.String("room_id", string(roomID)))
		return nil
	}

	settings, err := c.rooms.Settings(ctx, roomID)
	if err != nil {
		c.releaseOwner(ctx, roomID)
		return err
	}

	if err := c.store.ClearGame(ctx, roomID); err != nil {
		c.releaseOwner(ctx, roomID)
		return err
	}
	if err := c.rooms.UpdateStatus(ctx, roomID, model.RoomActive); err != nil {
		c.releaseOwner(ctx, roomID)
		return err
	}
	if err := c.store.SetGamePhase(ctx, roomID, model.PhaseWaiting); err != nil {
		c.releaseOwner(ctx, roomID)
		return err
	}

	c.mu.Lock()
	c.games[roomID] = &game{
		settings: settings,
		results:  make(map[model.UserID]model.QuestionResult),
	}
	c.mu.Unlock()

	count, err := c.rooms.MemberCount(ctx, roomID)
	if err != nil {
		count = 0
	}
	c.broadcast(roomID, model.NewMessage(model.EventState, model.StatePayload{
		Phase:       model.PhaseWaiting,
		PlayerCount: count,
	}))

	c.logger.Info("battle starting",
		slog.String("room_id", string(roomID)),
		slog.String("mode", string(settings.Mode)),
		slog.Int("players", count))

	c.scheduler.Schedule(string(roomID), c.cfg.StartDelay, func() {
		c.onTimer(roomID, func(ctx context.Context) {
			c.startRound(ctx, roomID, 1)
		})
	})
	return nil
}

func (c *Coordinator) startRound(ctx context.Context, roomID model.RoomID, round int) {
	if err := c.store.SetRound(ctx, roomID, round); err != nil {
		c.logger.Error("failed to persist round",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}

	c.mu.Lock()
	g, ok := c.games[roomID]
	if !ok {
		c.mu.Unlock()
		return
	}
	g.round = round
	g.questionNo = 0
	c.mu.Unlock()

	c.startQuestion(ctx, roomID)
}

// startQuestion issues the next question of the current round
func (c *Coordinator) startQuestion(ctx context.Context, roomID model.RoomID) {
	c.mu.Lock()
	g, ok := c.games[roomID]
	if !ok {
		c.mu.Unlock()
		return
	}
	settings := g.settings
	round := g.round
	questionNo := g.questionNo + 1
	c.mu.Unlock()

	target := c.scoring.TargetDifficulty(settings, round)
	q, err := c.questions.ByDifficulty(ctx, target)
	if err != nil {
		c.logger.Warn("no question available, ending battle",
			slog.String("room_id", string(roomID)),
			slog.Int("round", round),
			slog.String("difficulty", target.Label()))
		c.endGame(ctx, roomID, model.EndReasonNoQuestions)
		return
	}

	now := c.clock.Now()
	timeLimitMs := int64(settings.TimePerQuestion) * 1000

	if err := c.store.ClearAnswers(ctx, roomID); err != nil {
		c.logger.Error("failed to clear answers",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}
	if err := c.store.SetCurrentQuestion(ctx, roomID, q.ID, now); err != nil {
		c.logger.Error("failed to persist question",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}
	if err := c.store.SetGamePhase(ctx, roomID, model.PhaseQuestion); err != nil {
		c.logger.Error("failed to persist phase",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}

	c.mu.Lock()
	g, ok = c.games[roomID]
	if !ok {
		c.mu.Unlock()
		return
	}
	g.questionNo = questionNo
	g.question = q
	g.questionAt = now
	g.timeLimitMs = timeLimitMs
	g.accepting = true
	g.results = make(map[model.UserID]model.QuestionResult)
	c.mu.Unlock()

	c.broadcast(roomID, model.NewMessage(model.EventQuestion, model.QuestionPayload{
		Question:    q.Public(),
		Round:       round,
		QuestionNo:  questionNo,
		TimeLimitMs: timeLimitMs,
	}))

	c.logger.Info("question issued",
		slog.String("room_id", string(roomID)),
		slog.Int("round", round),
		slog.Int("question_no", questionNo),
		slog.String("question_id", string(q.ID)),
		slog.String("difficulty", q.Difficulty.Label()))

	c.scheduler.Schedule(string(roomID), time.Duration(timeLimitMs)*time.Millisecond, func() {
		c.onTimer(roomID, func(ctx context.Context) {
			c.endQuestion(ctx, roomID, round, questionNo)
		})
	})
}

// maybeEndEarly closes the question as soon as every member has
// answered rather than waiting out the timer.
func (c *Coordinator) maybeEndEarly(ctx context.Context, roomID model.RoomID, round, questionNo int) {
	answers, err := c.store.Answers(ctx, roomID)
	if err != nil {
		return
	}
	count, err := c.rooms.MemberCount(ctx, roomID)
	if err != nil || count == 0 {
		return
	}
	if len(answers) < count {
		return
	}

	c.scheduler.Cancel(string(roomID))
	c.endQuestion(ctx, roomID, round, questionNo)
}

// endQuestion closes the current question, broadcasts its results, and
// advances within the round or hands off to endRound. The round and
// question number guards make stale timer callbacks no-ops.
func (c *Coordinator) endQuestion(ctx context.Context, roomID model.RoomID, round, questionNo int) {
	c.mu.Lock()
	g, ok := c.games[roomID]
	if !ok || g.round != round || g.questionNo != questionNo || !g.accepting {
		c.mu.Unlock()
		return
	}
	g.accepting = false
	correctOption := g.question.CorrectOption
	settings := g.settings
	results := make([]model.QuestionResult, 0, len(g.results))
	for _, r := range g.results {
		results = append(results, r)
	}
	c.mu.Unlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].TimeTakenMs != results[j].TimeTakenMs {
			return results[i].TimeTakenMs < results[j].TimeTakenMs
		}
		return results[i].UserID < results[j].UserID
	})

	c.broadcast(roomID, model.NewMessage(model.EventQuestionEnded, model.QuestionEndedPayload{
		Round:         round,
		QuestionNo:    questionNo,
		CorrectOption: correctOption,
		Results:       results,
	}))

	if questionNo < settings.QuestionsPerRound {
		c.scheduler.Schedule(string(roomID), c.cfg.QuestionPause, func() {
			c.onTimer(roomID, func(ctx context.Context) {
				c.startQuestion(ctx, roomID)
			})
		})
		return
	}

	c.endRound(ctx, roomID, round, results)
}

// endRound runs the between-round transition: results phase, battle
// royale elimination, and either the next round or the end of the game.
func (c *Coordinator) endRound(ctx context.Context, roomID model.RoomID, round int, results []model.QuestionResult) {
	c.mu.Lock()
	g, ok := c.games[roomID]
	if !ok {
		c.mu.Unlock()
		return
	}
	settings := g.settings
	c.mu.Unlock()

	if err := c.store.SetGamePhase(ctx, roomID, model.PhaseResults); err != nil {
		c.logger.Error("failed to persist phase",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}

	if settings.Mode == model.ModeBattleRoyale && settings.EliminationCount > 0 {
		c.eliminate(ctx, roomID, round, settings.EliminationCount, results)
	}

	standings, err := c.store.Scores(ctx, roomID)
	if err != nil {
		standings = map[model.UserID]int{}
	}
	lastRound := round >= settings.QuestionLimit

	c.broadcast(roomID, model.NewMessage(model.EventRoundEnded, model.RoundEndedPayload{
		Round:     round,
		LastRound: lastRound,
		Standings: standings,
	}))

	remaining, err := c.rooms.MemberCount(ctx, roomID)
	if err != nil {
		remaining = 0
	}
	if remaining < 2 || lastRound {
		c.endGame(ctx, roomID, model.EndReasonCompleted)
		return
	}

	c.scheduler.Schedule(string(roomID), c.cfg.RoundPause, func() {
		c.onTimer(roomID, func(ctx context.Context) {
			c.startRound(ctx, roomID, round+1)
		})
	})
}

// eliminate removes the slowest players for the round. Players who
// never answered rank below every player who did. At least one player
// always survives.
func (c *Coordinator) eliminate(ctx context.Context, roomID model.RoomID, round, count int, results []model.QuestionResult) {
	members, err := c.rooms.Members(ctx, roomID)
	if err != nil {
		return
	}

	answered := make(map[model.UserID]int64, len(results))
	for _, r := range results {
		answered[r.UserID] = r.TimeTakenMs
	}

	// Slowest first: non-answerers, then answerers by descending time
	ranked := make([]model.UserID, 0, len(members))
	ranked = append(ranked, members...)
	sort.Slice(ranked, func(i, j int) bool {
		ti, iAnswered := answered[ranked[i]]
		tj, jAnswered := answered[ranked[j]]
		if iAnswered != jAnswered {
			return !iAnswered
		}
		if ti != tj {
			return ti > tj
		}
		return ranked[i] < ranked[j]
	})

	if count > len(members)-1 {
		count = len(members) - 1
	}
	if count <= 0 {
		return
	}

	eliminated := make([]model.UserID, 0, count)
	for _, userID := range ranked[:count] {
		if err := c.rooms.MarkEliminated(ctx, roomID, userID, round); err != nil {
			c.logger.Error("failed to eliminate player",
				slog.String("room_id", string(roomID)),
				slog.String("user_id", string(userID)),
				slog.String("error", err.Error()))
			continue
		}
		eliminated = append(eliminated, userID)
	}
	if len(eliminated) == 0 {
		return
	}

	c.broadcast(roomID, model.NewMessage(model.EventEliminated, model.EliminatedPayload{
		UserIDs: eliminated,
		Round:   round,
	}))

	c.logger.Info("players eliminated",
		slog.String("room_id", string(roomID)),
		slog.Int("round", round),
		slog.Int("count", len(eliminated)))
}

// endGame runs exactly once per battle: the stale-guard in the games
// map makes repeat calls no-ops.
func (c *Coordinator) endGame(ctx context.Context, roomID model.RoomID, reason string) {
	c.mu.Lock()
	_, ok := c.games[roomID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.games, roomID)
	c.mu.Unlock()

	c.scheduler.Cancel(string(roomID))

	scores, err := c.store.Scores(ctx, roomID)
	if err != nil {
		scores = map[model.UserID]int{}
	}
	winner := winnerOf(scores)

	if err := c.store.SetGamePhase(ctx, roomID, model.PhaseEnded); err != nil {
		c.logger.Error("failed to persist phase",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}
	if err := c.rooms.UpdateStatus(ctx, roomID, model.RoomEnded); err != nil {
		c.logger.Error("failed to update room status",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}

	c.broadcast(roomID, model.NewMessage(model.EventEnd, model.EndPayload{
		WinnerID:    winner,
		FinalScores: scores,
		Reason:      reason,
	}))

	c.enqueuer.Enqueue(ctx, model.TaskRoomCompletion, model.RoomCompletionTaskPayload{
		RoomID:      roomID,
		WinnerID:    winner,
		FinalScores: scores,
		EndTime:     c.clock.Now().UnixMilli(),
	}, 0)

	if err := c.store.ClearGame(ctx, roomID); err != nil {
		c.logger.Error("failed to clear game state",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}
	c.releaseOwner(ctx, roomID)

	c.logger.Info("battle ended",
		slog.String("room_id", string(roomID)),
		slog.String("winner_id", string(winner)),
		slog.String("reason", reason))
}

// Shutdown cancels all timers and releases every held lease so another
// instance can pick the rooms up.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.scheduler.CancelAll()

	c.mu.Lock()
	roomIDs := make([]model.RoomID, 0, len(c.games))
	for roomID := range c.games {
		roomIDs = append(roomIDs, roomID)
	}
	c.games = make(map[model.RoomID]*game)
	c.mu.Unlock()

	for _, roomID := range roomIDs {
		c.releaseOwner(ctx, roomID)
	}
}

// onTimer is the guard wrapped around every timer callback: the lease
// must still be held or the room has moved to another instance.
func (c *Coordinator) onTimer(roomID model.RoomID, fn func(ctx context.Context)) {
	ctx := context.Background()

	held, err := c.store.RefreshRoomOwner(ctx, roomID, c.cfg.InstanceID, c.cfg.OwnerLeaseTTL)
	if err != nil {
		c.logger.Error("owner lease refresh failed",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
		return
	}
	if !held {
		c.logger.Warn("owner lease lost, dropping room",
			slog.String("room_id", string(roomID)))
		c.mu.Lock()
		delete(c.games, roomID)
		c.mu.Unlock()
		return
	}

	fn(ctx)
}

func (c *Coordinator) releaseOwner(ctx context.Context, roomID model.RoomID) {
	if err := c.store.ReleaseRoomOwner(ctx, roomID, c.cfg.InstanceID); err != nil {
		c.logger.Warn("failed to release owner lease",
			slog.String("room_id", string(roomID)),
			slog.String("error", err.Error()))
	}
}

func (c *Coordinator) broadcast(roomID model.RoomID, msg model.Message) {
	if c.broadcaster == nil {
		return
	}
	c.broadcaster.Broadcast(roomID, msg)
}

// winnerOf picks the highest scorer, breaking ties by user id for
// determinism.
func winnerOf(scores map[model.UserID]int) model.UserID {
	var winner model.UserID
	best := -1
	for userID, score := range scores {
		if score > best || (score == best && userID < winner) {
			winner = userID
			best = score
		}
	}
	return winner
}
