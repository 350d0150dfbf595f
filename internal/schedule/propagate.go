package schedule

import (
	"context"
	"fmt"
	"time"
)

// propagateDelay cascades a timeline shift onto every appointment of the
// provider whose scheduled start is after the seed instant, whatever its
// status. Affected appointments are compacted back-to-back from the seed:
// the cursor advances by the provider's configured slot duration on every
// step, not by each appointment's own length, so longer visits shrink to the
// slot granularity in their proposals.
func (s *Service) propagateDelay(ctx context.Context, provider *Provider, from time.Time) error {
	affected, err := s.repo.ListStartingAfter(ctx, provider.ID, from)
	if err != nil {
		return fmt.Errorf("load downstream appointments: %w", err)
	}

	dur := provider.SlotDuration()
	cursor := from
	now := time.Now().UTC()

	for i := range affected {
		a := &affected[i]
		a.ForcePropose(cursor, cursor.Add(dur), now)
		if err := s.repo.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("propose reschedule for %s: %w", a.ID, err)
		}
		s.logEvent(ctx, a.ID, EventRescheduleProposed, map[string]any{
			"proposed_start":   *a.ProposedStart,
			"proposed_end":     *a.ProposedEnd,
			"rescheduled_from": *a.RescheduledFrom,
		})
		cursor = *a.ProposedEnd
	}

	if len(affected) > 0 {
		s.log.Info().
			Str("provider_id", provider.ID.String()).
			Time("from", from).
			Int("affected", len(affected)).
			Msg("cascaded reschedule proposals")
	}
	return nil
}

// proposeNextFreeForConflicts handles the override-confirm cascade: each
// pending appointment that overlaps the freshly confirmed one gets a single
// proposal at the next free slot after the confirmed end. When the bounded
// search finds nothing, the conflicting appointment is left pending.
func (s *Service) proposeNextFreeForConflicts(ctx context.Context, provider *Provider, confirmed *Appointment) error {
	pending, err := s.repo.ListByProviderAndStatus(ctx, provider.ID, StatusPending)
	if err != nil {
		return fmt.Errorf("load pending appointments: %w", err)
	}

	dur := provider.SlotDuration()
	now := time.Now().UTC()

	for i := range pending {
		p := &pending[i]
		if !Overlaps(confirmed.ScheduledStart, confirmed.ScheduledEnd, p.ScheduledStart, p.ScheduledEnd) {
			continue
		}

		next, found, err := s.slots.FindNextFreeSlot(ctx, provider, confirmed.ScheduledEnd, provider.SlotDurationMinutes)
		if err != nil {
			return fmt.Errorf("find next free slot: %w", err)
		}
		if !found {
			s.log.Warn().
				Str("provider_id", provider.ID.String()).
				Str("appointment_id", p.ID.String()).
				Msg("no free slot within horizon, conflicting request left pending")
			continue
		}

		p.ForcePropose(next, next.Add(dur), now)
		if err := s.repo.UpdateAppointment(ctx, p); err != nil {
			return fmt.Errorf("propose reschedule for %s: %w", p.ID, err)
		}
		s.logEvent(ctx, p.ID, EventRescheduleProposed, map[string]any{
			"proposed_start":   *p.ProposedStart,
			"proposed_end":     *p.ProposedEnd,
			"rescheduled_from": *p.RescheduledFrom,
		})
	}
	return nil
}
