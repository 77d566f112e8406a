package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// errBadBinding is the sentinel for an invalid bindings list. Anything
// wrapping it is a startup configuration error, never a runtime one.
var errBadBinding = errors.New("invalid bindings")

// parseBindings parses the "-b" comma-separated form ("1,2,3,4,5,6")
// into a bindings list.
func parseBindings(csv string) ([]int, error) {
	parts := strings.Split(csv, ",")
	bindings := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", errBadBinding, p)
		}
		bindings = append(bindings, n)
	}
	return bindings, nil
}

// validateBindings checks the shape of a bindings list against the output
// catalogue: exactly one entry per tracking channel, each either 0
// (discard) or a 1-based catalogue number.
func validateBindings(bindings []int) error {
	if len(bindings) != len(trackChannels) {
		return fmt.Errorf("%w: need %d entries, got %d", errBadBinding, len(trackChannels), len(bindings))
	}
	for i, n := range bindings {
		if n < 0 || n > catalogueSize {
			return fmt.Errorf("%w: entry %d for %s must be 0..%d, got %d",
				errBadBinding, i+1, trackChannels[i].name, catalogueSize, n)
		}
	}
	return nil
}

// buildBindingTable resolves a validated bindings list into the dispatch
// table: one destination (or nil for discard) per tracking channel, in
// packet order. Binding attaches the channel's value range to the
// destination for rescaling.
//
// Two channels may share a destination; the later channel in packet order
// wins within each frame because its write lands last before the sync.
func buildBindingTable(bindings []int, catalogue []outputDef, logger *slog.Logger) ([6]outputDef, error) {
	var table [6]outputDef
	if err := validateBindings(bindings); err != nil {
		return table, err
	}
	for i, n := range bindings {
		if n == 0 {
			logger.Info("binding", "channel", trackChannels[i].name, "output", "discard")
			continue
		}
		dest := catalogue[n-1]
		dest.bindSource(trackChannels[i])
		table[i] = dest
		logger.Info("binding", "channel", trackChannels[i].name, "output", dest.name())
	}
	return table, nil
}
