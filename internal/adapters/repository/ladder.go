package repository

import "sort"

// ladder keeps entries ordered by MMR desc, then player id asc, so the
// leaderboard is deterministic for equal ratings.
type ladder []Entry

func ranksBefore(aMMR float64, aID string, bMMR float64, bID string) bool {
	if aMMR != bMMR {
		return aMMR > bMMR
	}
	return aID < bID
}

func (l ladder) search(mmr float64, id string) int {
	return sort.Search(len(l), func(i int) bool {
		return !ranksBefore(l[i].MMR, l[i].PlayerID, mmr, id)
	})
}

func (l *ladder) insert(e Entry) {
	i := l.search(e.MMR, e.PlayerID)
	*l = append(*l, Entry{})
	copy((*l)[i+1:], (*l)[i:])
	(*l)[i] = e
}

func (l *ladder) remove(mmr float64, id string) {
	i := l.search(mmr, id)
	if i < len(*l) && (*l)[i].PlayerID == id {
		*l = append((*l)[:i], (*l)[i+1:]...)
	}
}

func (l ladder) top(n int) []Entry {
	if n > len(l) {
		n = len(l)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = l[i]
		out[i].Position = i + 1
	}
	return out
}
