package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest_ledger/internal/domain"
)

func TestReconcileRegistrations(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	f.user("bob", "500")
	f.user("carol", "500")
	open := f.tournament(NewTournament{Fee: dec("100")})
	done := f.tournament(NewTournament{Fee: dec("100")})

	_, err := f.svc.CollectTournamentFee(f.ctx, "alice", open.ID, dec("100"))
	require.NoError(t, err)
	_, err = f.svc.RegisterForTournament(f.ctx, "bob", open.ID, dec("100"))
	require.NoError(t, err)
	_, err = f.svc.CollectTournamentFee(f.ctx, "carol", done.ID, dec("100"))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.Tournament{}).Where("id = ?", done.ID).
		Updates(map[string]any{"paid_out": true, "status": domain.TournamentCompleted}).Error)

	orphans, err := f.svc.OrphanedFees(f.ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 2)
	assert.Equal(t, "alice", orphans[0].UserID)
	assert.Equal(t, open.ID, orphans[0].TournamentID)

	report, err := f.svc.ReconcileRegistrations(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Orphans: 2, Completed: 1, Skipped: 1}, report)

	var p domain.Player
	require.NoError(t, f.db.Where("tournament_id = ? AND user_id = ?", open.ID, "alice").First(&p).Error)
	assert.True(t, p.Balance.Equal(open.StartingBalance))
	assert.True(t, f.walletBalance("alice").Equal(dec("400")))

	report, err = f.svc.ReconcileRegistrations(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Orphans: 1, Skipped: 1}, report)
}
