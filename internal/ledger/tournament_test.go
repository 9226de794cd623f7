package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest_ledger/internal/domain"
)

func TestCollectTournamentFee(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})

	tx, err := f.svc.CollectTournamentFee(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, domain.TxTournamentFee, tx.Type)
	assert.Equal(t, domain.StatusCompleted, tx.Status)

	assert.True(t, f.walletBalance("alice").Equal(dec("400")))
	got := f.reloadTournament(tr.ID)
	assert.True(t, got.PrizePool.Equal(dec("100")))
	assert.True(t, got.CollectedFunds.Equal(dec("100")))
}

func TestCollectTournamentFeeInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "50")
	tr := f.tournament(NewTournament{Fee: dec("100")})

	_, err := f.svc.CollectTournamentFee(f.ctx, "alice", tr.ID, dec("100"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.True(t, f.walletBalance("alice").Equal(dec("50")))
	got := f.reloadTournament(tr.ID)
	assert.True(t, got.PrizePool.IsZero())
	assert.True(t, got.CollectedFunds.IsZero())
}

func TestCollectTournamentFeeNotFound(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})

	_, err := f.svc.CollectTournamentFee(f.ctx, "ghost", tr.ID, dec("100"))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.CollectTournamentFee(f.ctx, "alice", "no-such-tournament", dec("100"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, f.walletBalance("alice").Equal(dec("500")))
}

func TestRegisterForTournament(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100"), StartingBalance: dec("10000")})

	p, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)
	assert.True(t, p.Balance.Equal(dec("10000")))
	assert.Empty(t, p.Rebuys)

	_, err = f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.True(t, f.walletBalance("alice").Equal(dec("400")))
}

func TestRegisterForTournamentWrongFee(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})

	_, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("1"))
	require.ErrorIs(t, err, ErrValidation)
	assert.True(t, f.walletBalance("alice").Equal(dec("500")))
}

func TestRegisterForTournamentResumesAfterCrash(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})

	// fee charged, process died before the player row was written
	_, err := f.svc.CollectTournamentFee(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)

	p, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UserID)
	assert.True(t, f.walletBalance("alice").Equal(dec("400")))
	assert.True(t, f.reloadTournament(tr.ID).PrizePool.Equal(dec("100")))
}

func TestConcurrentRegistrationChargesOnce(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RegisterForTournament(context.Background(), "alice", tr.ID, dec("100"))
			if err != nil {
				assert.ErrorIs(t, err, ErrAlreadyRegistered)
			}
		}()
	}
	wg.Wait()

	assert.True(t, f.walletBalance("alice").Equal(dec("400")))
	assert.True(t, f.reloadTournament(tr.ID).CollectedFunds.Equal(dec("100")))
}

func TestRegisterPlayerRequiresFee(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})

	_, err := f.svc.RegisterPlayer(f.ctx, tr.ID, "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterClosedTournament(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})
	require.NoError(t, f.db.Model(&domain.Tournament{}).Where("id = ?", tr.ID).
		Updates(map[string]any{"status": domain.TournamentCompleted, "paid_out": true}).Error)

	_, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.ErrorIs(t, err, ErrTournamentClosed)
	assert.True(t, f.walletBalance("alice").Equal(dec("500")))
}

func TestProcessRebuy(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100"), RebuyFee: dec("50"), StartingBalance: dec("10000")})
	_, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)
	f.setPlayerBalance(tr.ID, "alice", "1200")
	f.start(tr.ID)

	tx, err := f.svc.ProcessRebuy(f.ctx, "alice", tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxRebuy, tx.Type)
	assert.True(t, tx.Amount.Equal(dec("50")))

	var p domain.Player
	require.NoError(t, f.db.Where("tournament_id = ? AND user_id = ?", tr.ID, "alice").First(&p).Error)
	assert.True(t, p.Balance.Equal(dec("11200")))
	require.Len(t, p.Rebuys, 1)
	assert.True(t, p.Rebuys[0].Amount.Equal(dec("50")))

	assert.True(t, f.walletBalance("alice").Equal(dec("350")))
	got := f.reloadTournament(tr.ID)
	assert.True(t, got.PrizePool.Equal(dec("150")))
	assert.True(t, got.CollectedFunds.Equal(dec("150")))
}

func TestProcessRebuyFailures(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "120")
	f.user("bob", "500")
	noRebuy := f.tournament(NewTournament{Fee: dec("10")})
	withRebuy := f.tournament(NewTournament{Fee: dec("100"), RebuyFee: dec("50")})
	f.start(noRebuy.ID)
	f.start(withRebuy.ID)

	_, err := f.svc.RegisterForTournament(f.ctx, "alice", noRebuy.ID, dec("10"))
	require.NoError(t, err)
	_, err = f.svc.ProcessRebuy(f.ctx, "alice", noRebuy.ID)
	require.ErrorIs(t, err, ErrRebuyNotAllowed)

	_, err = f.svc.ProcessRebuy(f.ctx, "bob", withRebuy.ID)
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = f.svc.RegisterForTournament(f.ctx, "alice", withRebuy.ID, dec("100"))
	require.NoError(t, err)
	_, err = f.svc.ProcessRebuy(f.ctx, "alice", withRebuy.ID)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.True(t, f.walletBalance("alice").Equal(dec("10")))
	assert.True(t, f.walletBalance("bob").Equal(dec("500")))
	assert.True(t, f.reloadTournament(withRebuy.ID).PrizePool.Equal(dec("100")))
}

func TestProcessRebuyBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100"), RebuyFee: dec("50")})
	_, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)

	_, err = f.svc.ProcessRebuy(f.ctx, "alice", tr.ID)
	require.ErrorIs(t, err, ErrRebuyNotAllowed)
	assert.True(t, f.walletBalance("alice").Equal(dec("400")))
	assert.True(t, f.reloadTournament(tr.ID).PrizePool.Equal(dec("100")))
}

func TestRequestRebuyStaleQuote(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100"), RebuyFee: dec("50")})
	_, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)
	f.start(tr.ID)

	_, err = f.svc.RequestRebuy(f.ctx, "alice", tr.ID, dec("40"))
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.RequestRebuy(f.ctx, "alice", tr.ID, dec("50"))
	require.NoError(t, err)
	assert.True(t, f.walletBalance("alice").Equal(dec("350")))
}

func TestConcurrentRebuysNoLostUpdate(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "1000")
	tr := f.tournament(NewTournament{Fee: dec("100"), RebuyFee: dec("50"), StartingBalance: dec("1000")})
	_, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)
	f.start(tr.ID)

	const rebuys = 5
	var wg sync.WaitGroup
	for i := 0; i < rebuys; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ProcessRebuy(context.Background(), "alice", tr.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var p domain.Player
	require.NoError(t, f.db.Where("tournament_id = ? AND user_id = ?", tr.ID, "alice").First(&p).Error)
	assert.True(t, p.Balance.Equal(dec("6000")))
	assert.Len(t, p.Rebuys, rebuys)
	assert.True(t, f.walletBalance("alice").Equal(dec("650")))
	assert.True(t, f.reloadTournament(tr.ID).PrizePool.Equal(dec("350")))
}

func TestSweepTournamentFundsToTreasury(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})
	_, err := f.svc.RegisterForTournament(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)
	treasury := f.treasuryBalance()

	_, err = f.svc.SweepTournamentFundsToTreasury(f.ctx, tr.ID, dec("150"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	tx, err := f.svc.SweepTournamentFundsToTreasury(f.ctx, tr.ID, dec("60"))
	require.NoError(t, err)
	assert.Equal(t, domain.TxTournamentFundsToTreasury, tx.Type)

	got := f.reloadTournament(tr.ID)
	assert.True(t, got.CollectedFunds.Equal(dec("40")))
	assert.True(t, got.PrizePool.Equal(dec("100")))
	assert.True(t, f.treasuryBalance().Equal(treasury.Add(dec("60"))))
}

func TestCreateTournamentValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]NewTournament{
		"no name":           {StartingBalance: dec("1")},
		"no balance":        {Name: "x"},
		"negative fee":      {Name: "x", StartingBalance: dec("1"), Fee: dec("-1")},
		"duplicate rank":    {Name: "x", StartingBalance: dec("1"), PayoutStructure: []domain.PayoutSlot{{Rank: 0, Amount: dec("1")}, {Rank: 0, Amount: dec("2")}}},
		"zero slot":         {Name: "x", StartingBalance: dec("1"), PayoutStructure: []domain.PayoutSlot{{Rank: 0, Amount: dec("0")}}},
		"fee too precise":   {Name: "x", StartingBalance: dec("1"), Fee: dec("1.00001")},
		"slot too precise":  {Name: "x", StartingBalance: dec("1"), PayoutStructure: []domain.PayoutSlot{{Rank: 0, Amount: dec("0.12345")}}},
		"completed at once": {Name: "x", StartingBalance: dec("1"), Status: domain.TournamentCompleted},
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateTournament(f.ctx, n)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestStartTournament(t *testing.T) {
	f := newFixture(t)
	tr := f.tournament(NewTournament{})
	assert.Equal(t, domain.TournamentUpcoming, tr.Status)

	started, err := f.svc.StartTournament(f.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentOngoing, started.Status)

	_, err = f.svc.StartTournament(f.ctx, tr.ID)
	require.ErrorIs(t, err, ErrValidation)
}
