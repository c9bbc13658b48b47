package dispatch

import (
	"fmt"
	"time"
)

// DefaultMediaOffset is how far media trails text for text-first definitions.
const DefaultMediaOffset = 2 * time.Second

// FanoutPlan is the ordered list of operations for one definition.
type FanoutPlan struct {
	Operations []SendOperation
	Warnings   []error
}

// Contacts groups the plan's operations by contact, preserving order.
func (p FanoutPlan) Contacts() [][]SendOperation {
	var groups [][]SendOperation
	for i, op := range p.Operations {
		if i == 0 || op.ContactIndex != p.Operations[i-1].ContactIndex {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], op)
	}
	return groups
}

// Planner expands a definition into per-contact send operations.
// It performs no I/O and returns the same plan for the same definition.
type Planner struct {
	mediaOffset time.Duration
}

// NewPlanner creates a planner. A non-positive offset uses DefaultMediaOffset.
func NewPlanner(mediaOffset time.Duration) *Planner {
	if mediaOffset <= 0 {
		mediaOffset = DefaultMediaOffset
	}
	return &Planner{mediaOffset: mediaOffset}
}

// Plan computes the staggered operations for def.
//
// The delay accumulator advances by def.Interval after each contact that got
// at least one operation. In ModeBoth with TextFirst the media operation trails
// the text by the media offset; with MediaFirst both share the contact's delay.
func (p *Planner) Plan(def Definition) FanoutPlan {
	var (
		plan         FanoutPlan
		delay        time.Duration
		mediaWarned  bool
		missingMedia = def.MediaID == nil
	)

	warnMissing := func() {
		if !mediaWarned {
			mediaWarned = true
			plan.Warnings = append(plan.Warnings, fmt.Errorf("%w: definition %d", ErrMediaMissing, def.ID))
		}
	}

	for idx, recipient := range def.Recipients {
		emitted := 0
		emit := func(kind OperationKind, at time.Duration) {
			plan.Operations = append(plan.Operations, p.operation(def, idx, recipient, kind, at))
			emitted++
		}
		textKind := OpText
		if def.Button.complete() {
			textKind = OpButton
		}

		switch def.Mode {
		case ModeText:
			emit(textKind, delay)
		case ModeMedia:
			if missingMedia {
				warnMissing()
				break
			}
			emit(OpMedia, delay)
		case ModeBoth:
			if def.Order == MediaFirst {
				if missingMedia {
					warnMissing()
				} else {
					emit(OpMedia, delay)
				}
				emit(textKind, delay)
				break
			}
			emit(textKind, delay)
			if missingMedia {
				warnMissing()
			} else {
				emit(OpMedia, delay+p.mediaOffset)
			}
		}

		if emitted > 0 {
			delay += def.Interval
		}
	}

	return plan
}

func (p *Planner) operation(def Definition, idx int, recipient string, kind OperationKind, delay time.Duration) SendOperation {
	op := SendOperation{
		Kind:          kind,
		OwnerID:       def.OwnerID,
		DefinitionID:  def.ID,
		CampaignID:    def.CampaignID,
		ContactIndex:  idx,
		Recipient:     recipient,
		Body:          def.Body,
		Delay:         delay,
		CorrelationID: CorrelationID(def.ID, def.CampaignID, idx, kind),
	}
	switch kind {
	case OpButton:
		button := *def.Button
		op.Button = &button
	case OpMedia:
		id := *def.MediaID
		op.MediaID = &id
	}
	return op
}
