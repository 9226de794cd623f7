package ledger

import (
	"context"

	"github.com/sirupsen/logrus"

	"contest_ledger/internal/domain"
)

// OrphanedFee is a collected entry fee without a player row.
type OrphanedFee struct {
	Reference    string
	UserID       string
	TournamentID string
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Orphans   int
	Completed int
	Skipped   int
	Failed    int
}

// OrphanedFees lists completed fee collections whose registration never
// created the player row.
func (s *Service) OrphanedFees(ctx context.Context) ([]OrphanedFee, error) {
	var rows []OrphanedFee
	err := s.store.DB().WithContext(ctx).
		Table("transactions AS t").
		Select("t.reference AS reference, t.user_id AS user_id, t.tournament_id AS tournament_id").
		Joins("LEFT JOIN players p ON p.tournament_id = t.tournament_id AND p.user_id = t.user_id").
		Where("t.type = ? AND t.status = ? AND p.user_id IS NULL", domain.TxTournamentFee, domain.StatusCompleted).
		Order("t.created_at ASC").
		Scan(&rows).Error
	return rows, err
}

// ReconcileRegistrations completes interrupted registrations. Orphans of a
// tournament that has already been paid out are left for an operator.
func (s *Service) ReconcileRegistrations(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	orphans, err := s.OrphanedFees(ctx)
	if err != nil {
		return report, err
	}
	report.Orphans = len(orphans)
	// Fix each orphan on its own, one failure does not stop the pass
	for _, o := range orphans {
		fields := logrus.Fields{
			"reference":     o.Reference,
			"user_id":       o.UserID,
			"tournament_id": o.TournamentID,
		}
		t, err := s.Tournament(ctx, o.TournamentID)
		if err != nil {
			report.Failed++
			s.log.WithFields(fields).WithError(err).Error("Reconcile: tournament lookup failed")
			continue
		}
		// Too late to seat the player
		if t.PaidOut {
			report.Skipped++
			s.log.WithFields(fields).Warn("Reconcile: fee collected for a paid out tournament without a player")
			continue
		}
		// Create the missing player row
		if _, err := s.RegisterPlayer(ctx, o.TournamentID, o.UserID); err != nil {
			report.Failed++
			s.log.WithFields(fields).WithError(err).Error("Reconcile: player registration failed")
			continue
		}
		report.Completed++
		s.log.WithFields(fields).Info("Reconcile: registration completed")
	}
	return report, nil
}
