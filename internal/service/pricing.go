// Package service implements the presentation generation and editing
// workflows on top of the agent runners.
package service

import (
	"strings"

	"github.com/deckforge-ai/presentation-platform/internal/model"
)

// priceEntry holds per-million-token USD rates. A tiered entry switches to
// the high rates for the WHOLE computation once the run's total token
// volume crosses the threshold; there is no per-token split.
type priceEntry struct {
	inputPerMTok  float64
	outputPerMTok float64

	tierThreshold     int // total tokens; 0 means flat pricing
	tierInputPerMTok  float64
	tierOutputPerMTok float64
}

// priceTable maps model-name prefixes to rates. Longest prefix wins.
var priceTable = map[string]priceEntry{
	"claude-sonnet-4-5": {inputPerMTok: 3.00, outputPerMTok: 15.00},
	"claude-haiku-4-5":  {inputPerMTok: 1.00, outputPerMTok: 5.00},
	"claude-opus-4":     {inputPerMTok: 15.00, outputPerMTok: 75.00},
	"gpt-4o-mini":       {inputPerMTok: 0.15, outputPerMTok: 0.60},
	"gpt-4o":            {inputPerMTok: 2.50, outputPerMTok: 10.00},
	"gpt-4.1":           {inputPerMTok: 2.00, outputPerMTok: 8.00},
	"gemini-2.5-pro": {
		inputPerMTok:      1.25,
		outputPerMTok:     10.00,
		tierThreshold:     200_000,
		tierInputPerMTok:  2.50,
		tierOutputPerMTok: 15.00,
	},
}

// Cost computes the USD cost of one run. Unknown models cost zero; pricing
// is advisory and must never fail a run.
func Cost(modelName string, usage model.Usage) float64 {
	entry, ok := lookupPrice(modelName)
	if !ok {
		return 0
	}

	in, out := entry.inputPerMTok, entry.outputPerMTok
	if entry.tierThreshold > 0 && usage.Total() > entry.tierThreshold {
		in, out = entry.tierInputPerMTok, entry.tierOutputPerMTok
	}

	return float64(usage.InputTokens)/1e6*in + float64(usage.OutputTokens)/1e6*out
}

func lookupPrice(modelName string) (priceEntry, bool) {
	var (
		best    priceEntry
		bestLen = -1
	)
	for prefix, entry := range priceTable {
		if strings.HasPrefix(modelName, prefix) && len(prefix) > bestLen {
			best, bestLen = entry, len(prefix)
		}
	}
	return best, bestLen >= 0
}
