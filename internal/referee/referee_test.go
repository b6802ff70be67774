package referee

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/park285/groupchess-bot/internal/action"
	"github.com/park285/groupchess-bot/internal/domain"
	"github.com/park285/groupchess-bot/internal/registry"
	"github.com/park285/groupchess-bot/internal/rules"
)

var (
	u1   = domain.User{ID: "u1", Name: "@one"}
	u2   = domain.User{ID: "u2", Name: "@two"}
	u3   = domain.User{ID: "u3", Name: "@three"}
	conv = domain.ConversationID("group-1")
)

func backends(t *testing.T) map[string]func(t *testing.T) registry.Store {
	return map[string]func(t *testing.T) registry.Store{
		"memory": func(*testing.T) registry.Store { return registry.NewMemoryStore() },
		"redis": func(t *testing.T) registry.Store {
			mr := miniredis.RunT(t)
			s := registry.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "ref:")
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, svc *Service)) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			svc := New(registry.New(mk(t)), rules.NewEngine())
			fn(t, svc)
		})
	}
}

func startGame(t *testing.T, svc *Service) *domain.Game {
	t.Helper()
	ctx := context.Background()
	target := u2
	_, err := svc.IssueChallenge(ctx, conv, u1, &target)
	require.NoError(t, err)
	g, _, err := svc.Accept(ctx, conv, u2, action.Accept{Challenger: u1.ID, Challenged: u2.ID})
	require.NoError(t, err)
	return g
}

func play(t *testing.T, svc *Service, g *domain.Game, moves ...string) *MoveResult {
	t.Helper()
	var res *MoveResult
	for i, uci := range moves {
		m, err := action.ParseMove(uci)
		require.NoError(t, err)
		actor := g.White
		if i%2 == 1 {
			actor = g.Black
		}
		res, err = svc.PlayMove(context.Background(), conv, actor, m)
		require.NoError(t, err, "move %d %s", i+1, uci)
	}
	return res
}

func TestChallengeAcceptAndFirstMoves(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		g := startGame(t, svc)
		assert.Equal(t, u1.ID, g.White.ID)
		assert.Equal(t, u2.ID, g.Black.ID)
		assert.Empty(t, g.Moves)

		res, err := svc.PlayMove(ctx, conv, u1, action.Move{From: "e2", To: "e4"})
		require.NoError(t, err)
		assert.Nil(t, res.Outcome)
		assert.Equal(t, domain.White, res.Mover)
		assert.Equal(t, domain.Black, res.Board.Turn())
		assert.Equal(t, []string{"e2e4"}, res.Game.Moves)

		_, err = svc.PlayMove(ctx, conv, u2, action.Move{From: "e2", To: "e4"})
		assert.ErrorIs(t, err, domain.ErrIllegalMove)

		_, err = svc.PlayMove(ctx, conv, u1, action.Move{From: "d2", To: "d4"})
		assert.ErrorIs(t, err, domain.ErrNotYourTurn)

		_, err = svc.PlayMove(ctx, conv, u3, action.Move{From: "e7", To: "e5"})
		assert.ErrorIs(t, err, domain.ErrNotYourTurn)

		cur, board, err := svc.Current(ctx, conv)
		require.NoError(t, err)
		assert.Equal(t, []string{"e2e4"}, cur.Moves)
		assert.Equal(t, domain.Black, board.Turn())
	})
}

func TestChallengeRejections(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		self := u1
		_, err := svc.IssueChallenge(ctx, conv, u1, &self)
		assert.ErrorIs(t, err, domain.ErrSelfChallenge)

		_, err = svc.IssueChallenge(ctx, conv, u1, nil)
		assert.ErrorIs(t, err, domain.ErrMissingTarget)

		target := u2
		_, err = svc.IssueChallenge(ctx, conv, u1, &target)
		require.NoError(t, err)

		other := u1
		_, err = svc.IssueChallenge(ctx, conv, u3, &other)
		assert.ErrorIs(t, err, domain.ErrAlreadyActive)

		_, _, err = svc.Accept(ctx, conv, u3, action.Accept{Challenger: u1.ID, Challenged: u2.ID})
		assert.ErrorIs(t, err, domain.ErrNotAddressedToYou)
		_, err = svc.Decline(ctx, conv, u1, action.Decline{Challenger: u1.ID, Challenged: u2.ID})
		assert.ErrorIs(t, err, domain.ErrNotAddressedToYou)

		_, err = svc.PlayMove(ctx, conv, u1, action.Move{From: "e2", To: "e4"})
		assert.ErrorIs(t, err, domain.ErrNoActiveGame)
	})
}

func TestDeclineFreesConversation(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		target := u2
		_, err := svc.IssueChallenge(ctx, conv, u1, &target)
		require.NoError(t, err)

		ch, err := svc.Decline(ctx, conv, u2, action.Decline{Challenger: u1.ID, Challenged: u2.ID})
		require.NoError(t, err)
		assert.Equal(t, u1.ID, ch.Challenger.ID)

		_, _, err = svc.Accept(ctx, conv, u2, action.Accept{Challenger: u1.ID, Challenged: u2.ID})
		assert.ErrorIs(t, err, domain.ErrStaleChallenge)
		_, err = svc.Decline(ctx, conv, u2, action.Decline{Challenger: u1.ID, Challenged: u2.ID})
		assert.ErrorIs(t, err, domain.ErrStaleChallenge)

		third := u1
		_, err = svc.IssueChallenge(ctx, conv, u3, &third)
		assert.NoError(t, err)
	})
}

func TestStaleDeclineKeepsNewerChallenge(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		target := u2
		_, err := svc.IssueChallenge(ctx, conv, u3, &target)
		require.NoError(t, err)

		_, err = svc.Decline(ctx, conv, u2, action.Decline{Challenger: u1.ID, Challenged: u2.ID})
		assert.ErrorIs(t, err, domain.ErrStaleChallenge)

		_, _, err = svc.Accept(ctx, conv, u2, action.Accept{Challenger: u3.ID, Challenged: u2.ID})
		assert.NoError(t, err)
	})
}

func TestAcceptDuringGameIsStale(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		startGame(t, svc)
		_, _, err := svc.Accept(context.Background(), conv, u2, action.Accept{Challenger: u1.ID, Challenged: u2.ID})
		assert.ErrorIs(t, err, domain.ErrStaleChallenge)
	})
}

func TestFoolsMateWinnerIsMover(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		g := startGame(t, svc)
		res := play(t, svc, g, "f2f3", "e7e5", "g2g4", "d8h4")
		require.NotNil(t, res.Outcome)
		assert.Equal(t, ReasonCheckmate, res.Outcome.Reason)
		require.NotNil(t, res.Outcome.Winner)
		assert.Equal(t, u2.ID, res.Outcome.Winner.ID)

		_, err := svc.PlayMove(context.Background(), conv, u1, action.Move{From: "a2", To: "a3"})
		assert.ErrorIs(t, err, domain.ErrNoActiveGame)

		target := u3
		_, err = svc.IssueChallenge(context.Background(), conv, u1, &target)
		assert.NoError(t, err)
	})
}

func TestStalemateEndsAsDraw(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		g := startGame(t, svc)
		res := play(t, svc, g, strings.Fields(
			"e2e3 a7a5 d1h5 a8a6 h5a5 h7h5 h2h4 a6h6 a5c7 f7f6 c7d7 e8f7 d7b7 d8d3 b7b8 d3h7 b8c8 f7g6 c8e6")...)
		require.NotNil(t, res.Outcome)
		assert.Equal(t, ReasonStalemate, res.Outcome.Reason)
		assert.Nil(t, res.Outcome.Winner)
	})
}

func TestThreefoldRepetitionEndsGame(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		g := startGame(t, svc)
		res := play(t, svc, g, "g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1", "f6g8")
		require.NotNil(t, res.Outcome)
		assert.Equal(t, ReasonThreefold, res.Outcome.Reason)
	})
}

func TestConcurrentAcceptSingleGame(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		target := u2
		_, err := svc.IssueChallenge(ctx, conv, u1, &target)
		require.NoError(t, err)

		var ok, stale atomic.Int32
		var eg errgroup.Group
		for i := 0; i < 10; i++ {
			eg.Go(func() error {
				_, _, err := svc.Accept(ctx, conv, u2, action.Accept{Challenger: u1.ID, Challenged: u2.ID})
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrStaleChallenge):
					stale.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, eg.Wait())
		assert.EqualValues(t, 1, ok.Load())
		assert.EqualValues(t, 9, stale.Load())
	})
}

func TestConcurrentMovesSingleApplied(t *testing.T) {
	eachBackend(t, func(t *testing.T, svc *Service) {
		ctx := context.Background()
		startGame(t, svc)

		var ok atomic.Int32
		var eg errgroup.Group
		for _, mv := range []string{"e2e4", "d2d4", "g1f3", "c2c4", "b1c3"} {
			m, err := action.ParseMove(mv)
			require.NoError(t, err)
			eg.Go(func() error {
				_, err := svc.PlayMove(ctx, conv, u1, m)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, domain.ErrNotYourTurn):
				default:
					return fmt.Errorf("%s: %w", m, err)
				}
				return nil
			})
		}
		require.NoError(t, eg.Wait())
		assert.EqualValues(t, 1, ok.Load())

		cur, board, err := svc.Current(ctx, conv)
		require.NoError(t, err)
		assert.Len(t, cur.Moves, 1)
		assert.Equal(t, domain.Black, board.Turn())
	})
}

func TestIndependentConversations(t *testing.T) {
	svc := New(registry.New(registry.NewMemoryStore()), rules.NewEngine())
	ctx := context.Background()
	var eg errgroup.Group
	for i := 0; i < 20; i++ {
		c := domain.ConversationID(fmt.Sprintf("chat-%d", i))
		eg.Go(func() error {
			target := u2
			if _, err := svc.IssueChallenge(ctx, c, u1, &target); err != nil {
				return err
			}
			if _, _, err := svc.Accept(ctx, c, u2, action.Accept{Challenger: u1.ID, Challenged: u2.ID}); err != nil {
				return err
			}
			_, err := svc.PlayMove(ctx, c, u1, action.Move{From: "e2", To: "e4"})
			return err
		})
	}
	require.NoError(t, eg.Wait())
}

func TestGameIDsFromGenerator(t *testing.T) {
	svc := New(registry.New(registry.NewMemoryStore()), rules.NewEngine(), WithIDGenerator(func() string { return "fixed" }))
	g := startGame(t, svc)
	assert.Equal(t, "fixed", g.ID)
}
