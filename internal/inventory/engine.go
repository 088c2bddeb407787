package inventory

import "fmt"

// Transition is the computed outcome of applying one adjustment to a stock unit.
type Transition struct {
	NewQty    int64
	ChangeQty int64
	NewStatus StockStatus
}

// ComputeTransition applies an adjustment request to the current quantity and
// threshold of a stock unit. It is pure: it performs no I/O and never mutates
// its inputs. Rejections leave the caller's transaction untouched.
func ComputeTransition(currentQty, threshold int64, req AdjustmentRequest) (Transition, error) {
	if req.Quantity < 0 {
		return Transition{}, fmt.Errorf("%w: quantity must be >= 0, got %d", ErrInvalidInput, req.Quantity)
	}
	if !req.Reason.Valid() {
		return Transition{}, fmt.Errorf("%w: unknown reason code %q", ErrInvalidInput, req.Reason)
	}

	var newQty int64
	switch req.Type {
	case AdjustmentAdd:
		newQty = currentQty + req.Quantity
	case AdjustmentRemove:
		newQty = currentQty - req.Quantity
		if newQty < 0 {
			return Transition{}, &InsufficientStockError{Ref: req.Ref, Available: currentQty, Requested: req.Quantity}
		}
	case AdjustmentSet:
		newQty = req.Quantity
	default:
		return Transition{}, fmt.Errorf("%w: unknown adjustment type %q", ErrInvalidInput, req.Type)
	}

	return Transition{
		NewQty:    newQty,
		ChangeQty: newQty - currentQty,
		NewStatus: DeriveStatus(newQty, threshold),
	}, nil
}
