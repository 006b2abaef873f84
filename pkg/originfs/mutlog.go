package originfs

import (
	"fmt"

	"github.com/originfs/originfs/pkg/models"
	"github.com/originfs/originfs/pkg/protocol"
)

// MutationLog is the ordered queue of mutations not yet acknowledged by the
// store. Entries are stored in wire form, so a retried commit resends the
// same bytes. It is not safe for concurrent use.
type MutationLog struct {
	entries []protocol.Mutation
}

// Append adds mutations to the end of the log.
func (l *MutationLog) Append(m ...protocol.Mutation) {
	l.entries = append(l.entries, m...)
}

// Snapshot returns a copy of the pending entries.
func (l *MutationLog) Snapshot() []protocol.Mutation {
	if len(l.entries) == 0 {
		return nil
	}
	out := make([]protocol.Mutation, len(l.entries))
	copy(out, l.entries)
	return out
}

// Drop removes the first n entries after they were acknowledged.
func (l *MutationLog) Drop(n int) {
	if n >= len(l.entries) {
		l.entries = nil
		return
	}
	l.entries = append([]protocol.Mutation(nil), l.entries[n:]...)
}

// Len returns the number of pending entries.
func (l *MutationLog) Len() int {
	return len(l.entries)
}

// Replay applies the queued updates for rec.ID onto rec in issue order, so a
// record fetched from the store reflects changes not yet committed.
func (l *MutationLog) Replay(rec *models.Record) error {
	for _, m := range l.entries {
		if m.UUID != rec.ID || m.Command != protocol.CommandUpdate {
			continue
		}
		if err := rec.SetField(m.Field(), m.Data); err != nil {
			return fmt.Errorf("replay field %d: %w", m.Field(), err)
		}
	}
	return nil
}
