package matchsim

import (
	"errors"
	"fmt"
)

// VerifyLeaderboard checks that positions are consecutive from 1 and that
// entries are ordered by MMR desc, then player id asc.
func VerifyLeaderboard(entries []Entry) error {
	if len(entries) == 0 {
		return errors.New("empty leaderboard")
	}
	for i, e := range entries {
		if e.Position != i+1 {
			return fmt.Errorf("entry %s has position %d, want %d", e.PlayerID, e.Position, i+1)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if prev.MMR < e.MMR || prev.MMR == e.MMR && prev.PlayerID > e.PlayerID {
			return fmt.Errorf("entries %s (%.1f) and %s (%.1f) are out of order",
				prev.PlayerID, prev.MMR, e.PlayerID, e.MMR)
		}
	}
	return nil
}
