package training

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/tsawler/go-latent/tables"
)

// EpochLoss is the per-sample mean loss of one epoch
type EpochLoss struct {
	Epoch     int // 0-based
	TrainLoss float64
	ValLoss   float64
	Duration  time.Duration
}

// History is the append-only record of a run's epoch losses
type History struct {
	TrainLoss []float64
	ValLoss   []float64
	Epochs    []EpochLoss
}

// Append records one epoch
func (h *History) Append(e EpochLoss) {
	h.TrainLoss = append(h.TrainLoss, e.TrainLoss)
	h.ValLoss = append(h.ValLoss, e.ValLoss)
	h.Epochs = append(h.Epochs, e)
}

// Len returns the number of recorded epochs
func (h *History) Len() int {
	return len(h.Epochs)
}

// Best returns the epoch with the lowest validation loss
func (h *History) Best() (EpochLoss, bool) {
	if len(h.Epochs) == 0 {
		return EpochLoss{}, false
	}
	best := h.Epochs[0]
	for _, e := range h.Epochs[1:] {
		if e.ValLoss < best.ValLoss {
			best = e
		}
	}
	return best, true
}

// Table renders the history as a rounded table
func (h *History) Table() string {
	tw := tables.NewWriter(
		tables.Right("Epoch"),
		tables.Right("Train Loss"),
		tables.Right("Val Loss"),
		tables.Right("Time"),
	)
	for _, e := range h.Epochs {
		tw.AppendRow(table.Row{
			e.Epoch + 1,
			fmt.Sprintf("%.4f", e.TrainLoss),
			fmt.Sprintf("%.4f", e.ValLoss),
			e.Duration.Round(time.Millisecond).String(),
		})
	}
	if best, ok := h.Best(); ok {
		tw.AppendFooter(table.Row{"best", "", fmt.Sprintf("%.4f", best.ValLoss), fmt.Sprintf("epoch %d", best.Epoch+1)})
	}
	return tw.Render()
}
