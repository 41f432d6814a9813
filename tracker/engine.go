// Package tracker runs the polling cycle: it finds the newest match of every
// opted-in registered user, records it as reported, groups users that played
// the same match, and posts one report per match to the tracker channel.
//
// The last reported match id is committed to the registry before anything is
// rendered or delivered. A report that fails to render or send is logged and
// dropped; it is never retried and the commit is never rolled back.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/match-tender/opendota"
	"github.com/onnwee/match-tender/registry"
	"github.com/onnwee/match-tender/report"
	"github.com/onnwee/match-tender/telemetry"
)

// Stats is the subset of the OpenDota client the engine needs.
type Stats interface {
	LatestMatch(ctx context.Context, steamID string) (*opendota.RecentMatch, error)
	IsParsed(ctx context.Context, matchID int64) bool
	RequestParse(ctx context.Context, matchID int64)
}

// Reporter renders reports.
type Reporter interface {
	Individual(ctx context.Context, steamID, displayName string, recent opendota.RecentMatch) report.Report
	Combined(ctx context.Context, matchID int64, participants []report.Participant) report.Report
}

// Sink is a channel reports can be posted to.
type Sink interface {
	SendReport(ctx context.Context, r report.Report) error
	SendText(ctx context.Context, text string) error
}

// SinkProvider resolves the tracker channel. It is asked once per cycle.
type SinkProvider interface {
	TrackerSink(ctx context.Context) (Sink, error)
}

// Directory turns a user id into a display name. It falls back to the id.
type Directory interface {
	DisplayName(ctx context.Context, userID string) string
}

// Replies sent by the engine.
const (
	ParseNoticeFormat = "A parse request has been sent for match %d. More detailed stats will be available soon."
	NoRecentMatches   = "No recent matches found for the user."
	FetchApology      = "An error occurred while fetching the recent match. Please try again later."
)

const tracerName = "tracker"

// Engine executes poll cycles. RunCycle must not be called concurrently;
// Scheduler guarantees that. RecentStats may run alongside a cycle.
type Engine struct {
	Registry  *registry.Registry
	Stats     Stats
	Reports   Reporter
	Sinks     SinkProvider
	Directory Directory
	// CallTimeout bounds each provider call. Zero means 10s.
	CallTimeout time.Duration

	mu   sync.Mutex
	last *CycleResult
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	CorrelationID string
	Started       time.Time
	Finished      time.Time
	Scanned       int // opted-in users fetched
	OptedOut      int
	Unchanged     int
	FetchFailed   int
	CommitFailed  int
	NewMatches    int // (user, match) observations committed
	Reports       int // buckets drained
	RenderFailed  int
	Delivered     int
	DeliveryFails int
	Err           error
}

type observation struct {
	user   registry.User
	recent opendota.RecentMatch
}

type bucket struct {
	matchID int64
	obs     []observation
}

func (e *Engine) callTimeout() time.Duration {
	if e.CallTimeout <= 0 {
		return 10 * time.Second
	}
	return e.CallTimeout
}

// LastResult returns the result of the most recent cycle.
func (e *Engine) LastResult() (CycleResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return CycleResult{}, false
	}
	return *e.last, true
}

// RunCycle performs one complete scan, commit, bucket and drain pass.
func (e *Engine) RunCycle(ctx context.Context) (res CycleResult) {
	res = CycleResult{CorrelationID: uuid.NewString(), Started: time.Now()}
	ctx = telemetry.WithCorrelation(ctx, res.CorrelationID)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "tracker.cycle")
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "tracker"))

	defer func() {
		res.Finished = time.Now()
		telemetry.Inc(telemetry.PollCycles)
		if telemetry.CycleDuration != nil {
			telemetry.CycleDuration.Observe(res.Finished.Sub(res.Started).Seconds())
		}
		telemetry.MarkCycleDone(res.Finished)
		telemetry.SetRegisteredUsers(e.Registry.Len())
		e.mu.Lock()
		r := res
		e.last = &r
		e.mu.Unlock()
	}()

	sink, err := e.Sinks.TrackerSink(ctx)
	if err != nil {
		res.Err = fmt.Errorf("resolve tracker channel: %w", err)
		telemetry.RecordError(span, res.Err)
		logger.Error("skipping cycle: tracker channel unavailable", slog.Any("err", err))
		return res
	}

	buckets := e.scan(ctx, logger, &res)
	for _, b := range buckets {
		if ctx.Err() != nil {
			logger.Warn("cycle cancelled during drain", slog.Int("pending", len(buckets)-res.Reports))
			break
		}
		e.drain(ctx, logger, sink, b, &res)
	}

	logger.Info("poll cycle complete",
		slog.Int("scanned", res.Scanned),
		slog.Int("new", res.NewMatches),
		slog.Int("reports", res.Reports),
		slog.Int("fetch_failed", res.FetchFailed),
		slog.Int("render_failed", res.RenderFailed),
		slog.Int("delivery_failed", res.DeliveryFails),
		slog.Duration("took", time.Since(res.Started)))
	telemetry.SetSpanSuccess(span)
	return res
}

// scan fetches, compares and commits. It returns buckets in first-seen order.
func (e *Engine) scan(ctx context.Context, logger *slog.Logger, res *CycleResult) []*bucket {
	var order []*bucket
	byMatch := make(map[int64]*bucket)

	for _, u := range e.Registry.All() {
		if ctx.Err() != nil {
			break
		}
		if !u.AutoNotify {
			res.OptedOut++
			continue
		}
		res.Scanned++

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout())
		latest, err := e.Stats.LatestMatch(callCtx, u.SteamID)
		cancel()
		if err != nil {
			res.FetchFailed++
			logger.Warn("skipping user: latest match unavailable", slog.String("user_id", u.UserID), slog.String("steam_id", u.SteamID), slog.Any("err", err))
			continue
		}
		if latest == nil || u.HasReported(latest.MatchID) {
			res.Unchanged++
			continue
		}

		matchID := latest.MatchID
		committed, err := e.Registry.Modify(ctx, u.UserID, func(cur *registry.User) {
			cur.LastMatchID = &matchID
		})
		if err != nil {
			if !errors.Is(err, registry.ErrNotRegistered) {
				res.CommitFailed++
				telemetry.Inc(telemetry.CommitFailures)
			}
			logger.Error("dropping observation: commit failed", slog.String("user_id", u.UserID), slog.Int64("match_id", matchID), slog.Any("err", err))
			continue
		}
		res.NewMatches++
		telemetry.Inc(telemetry.NewMatches)

		b, ok := byMatch[matchID]
		if !ok {
			b = &bucket{matchID: matchID}
			byMatch[matchID] = b
			order = append(order, b)
		}
		b.obs = append(b.obs, observation{user: committed, recent: *latest})
	}
	return order
}

func (e *Engine) drain(ctx context.Context, logger *slog.Logger, sink Sink, b *bucket, res *CycleResult) {
	res.Reports++
	logger = logger.With(slog.Int64("match_id", b.matchID), slog.Int("players", len(b.obs)))

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout())
	parsed := e.Stats.IsParsed(callCtx, b.matchID)
	cancel()
	if !parsed {
		parseCtx, cancel := context.WithTimeout(ctx, e.callTimeout())
		e.Stats.RequestParse(parseCtx, b.matchID)
		cancel()
		telemetry.Inc(telemetry.ParseRequests)
		if err := sink.SendText(ctx, fmt.Sprintf(ParseNoticeFormat, b.matchID)); err != nil {
			res.DeliveryFails++
			telemetry.Inc(telemetry.DeliveryFailures)
			logger.Warn("parse notice not delivered", slog.Any("err", err))
		} else {
			telemetry.IncReport("notice")
		}
	}

	r, kind, err := e.render(ctx, b)
	if err != nil {
		res.RenderFailed++
		telemetry.Inc(telemetry.DeliveryFailures)
		logger.Error("report not rendered", slog.String("kind", kind), slog.Any("err", err))
		return
	}

	if err := sink.SendReport(ctx, r); err != nil {
		res.DeliveryFails++
		telemetry.Inc(telemetry.DeliveryFailures)
		logger.Error("report not delivered", slog.String("kind", kind), slog.Any("err", err))
		return
	}
	res.Delivered++
	telemetry.IncReport(kind)
}

// render builds the report for b. A panicking Reporter is turned into an error
// so one bad match cannot take the cycle down.
func (e *Engine) render(ctx context.Context, b *bucket) (r report.Report, kind string, err error) {
	kind = "individual"
	if len(b.obs) > 1 {
		kind = "combined"
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render %s report for match %d: %v", kind, b.matchID, p)
		}
	}()

	if kind == "combined" {
		participants := make([]report.Participant, 0, len(b.obs))
		for _, o := range b.obs {
			participants = append(participants, report.Participant{
				SteamID:     o.user.SteamID,
				DisplayName: e.displayName(ctx, o.user.UserID),
				Recent:      o.recent,
			})
		}
		return e.Reports.Combined(ctx, b.matchID, participants), kind, nil
	}
	o := b.obs[0]
	return e.Reports.Individual(ctx, o.user.SteamID, e.displayName(ctx, o.user.UserID), o.recent), kind, nil
}

func (e *Engine) displayName(ctx context.Context, userID string) string {
	if e.Directory == nil {
		return userID
	}
	if name := e.Directory.DisplayName(ctx, userID); name != "" {
		return name
	}
	return userID
}

// RecentStats posts the latest match of the user registered as userID to sink.
// It never writes to the registry. It returns registry.ErrNotRegistered for
// unknown users and a wrapped report.ErrDeliveryFailed when sink rejects the
// message; upstream failures are answered with an apology instead.
func (e *Engine) RecentStats(ctx context.Context, userID string, sink Sink) error {
	u, ok := e.Registry.Get(userID)
	if !ok {
		return registry.ErrNotRegistered
	}
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "tracker"), slog.String("user_id", userID))

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout())
	latest, err := e.Stats.LatestMatch(callCtx, u.SteamID)
	cancel()
	if err != nil {
		logger.Warn("recent stats unavailable", slog.Any("err", err))
		return deliver(sink.SendText(ctx, FetchApology))
	}
	if latest == nil {
		return deliver(sink.SendText(ctx, NoRecentMatches))
	}
	r := e.Reports.Individual(ctx, u.SteamID, e.displayName(ctx, userID), *latest)
	if err := sink.SendReport(ctx, r); err != nil {
		return deliver(err)
	}
	telemetry.IncReport("on_demand")
	return nil
}

func deliver(err error) error {
	if err == nil || errors.Is(err, report.ErrDeliveryFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", report.ErrDeliveryFailed, err)
}
