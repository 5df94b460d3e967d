// Package split turns one gross expense amount and a participant set
// into settled per-participant shares.
//
// Splitting is informational: the full gross amount is settled against
// the payer's account, shares only describe what each participant owes.
package split

import (
	"fmt"

	"bookkeep/internal/core"
	"bookkeep/internal/money"
)

// Share is one participant's portion of a split expense.
type Share struct {
	Participant core.Participant
	Amount      money.Money
}

// Resolution is the outcome of resolving a split: the per-participant
// shares and the amount the ledger records against the payer's account.
type Resolution struct {
	Shares []Share
	// PerShare is the rounded even share; the payer's share differs by
	// the rounding remainder.
	PerShare money.Money
	// SettledAmount is the full gross amount, settled against the payer.
	SettledAmount money.Money
}

// Resolve divides gross evenly among the participants. Each share is
// gross/n rounded half-up to the currency's minor unit; the rounding
// remainder is assigned to the fixed payer so the shares sum exactly to
// gross.
func Resolve(gross money.Money, participants []core.Participant) (Resolution, error) {
	if !gross.IsPositive() {
		return Resolution{}, &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount}
	}
	if len(participants) < 2 {
		return Resolution{}, &core.ValidationError{Field: "participants", Err: core.ErrTooFewParticipants}
	}

	payerIdx := -1
	for i, p := range participants {
		if p.Fixed {
			payerIdx = i
			break
		}
	}
	if payerIdx < 0 {
		return Resolution{}, &core.ValidationError{Field: "participants", Err: core.ErrMissingSelf}
	}

	n := int64(len(participants))
	perShare := gross.Div(n).Round()

	// The payer absorbs the remainder: gross - perShare*(n-1).
	othersTotal := money.Zero(gross.Currency())
	shares := make([]Share, len(participants))
	for i, p := range participants {
		if i == payerIdx {
			continue
		}
		shares[i] = Share{Participant: p, Amount: perShare}
		total, err := othersTotal.Add(perShare)
		if err != nil {
			return Resolution{}, fmt.Errorf("sum shares: %w", err)
		}
		othersTotal = total
	}
	payerShare, err := gross.Sub(othersTotal)
	if err != nil {
		return Resolution{}, fmt.Errorf("payer share: %w", err)
	}
	shares[payerIdx] = Share{Participant: participants[payerIdx], Amount: payerShare}

	return Resolution{
		Shares:        shares,
		PerShare:      perShare,
		SettledAmount: gross.Round(),
	}, nil
}

// Remove deletes the participant with the given id from the set. Removing
// a fixed participant is rejected.
func Remove(participants []core.Participant, id string) ([]core.Participant, error) {
	for i, p := range participants {
		if p.ID != id {
			continue
		}
		if p.Fixed {
			return nil, &core.ValidationError{Field: "participants", Err: core.ErrFixedParticipant}
		}
		out := make([]core.Participant, 0, len(participants)-1)
		out = append(out, participants[:i]...)
		out = append(out, participants[i+1:]...)
		return out, nil
	}
	return participants, nil
}

// Clear resets the selection to the singleton fixed-participant set
// rather than an empty set.
func Clear() []core.Participant {
	return []core.Participant{core.SelfParticipant()}
}
