package inmem

import (
	"context"
	"sync"

	"github.com/hudoor/hudoor/core/roster"
)

// RosterRepository keeps a roster table in memory. WriteErr, when set, fails every write.
type RosterRepository struct {
	mutex    sync.RWMutex
	table    roster.Table
	writes   int
	WriteErr error
}

var _ roster.Repository = (*RosterRepository)(nil)

func NewRosterRepository(header []string, records ...[]string) *RosterRepository {
	return &RosterRepository{table: copyTable(roster.Table{Header: header, Records: records})}
}

func copyTable(t roster.Table) roster.Table {
	cp := roster.Table{Header: append([]string(nil), t.Header...), Records: make([][]string, len(t.Records))}
	for i, rec := range t.Records {
		cp.Records[i] = append([]string(nil), rec...)
	}
	return cp
}

func (repo *RosterRepository) Read(ctx context.Context) (roster.Table, error) {
	if err := ctx.Err(); err != nil {
		return roster.Table{}, err
	}
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()
	return copyTable(repo.table), nil
}

func (repo *RosterRepository) Write(ctx context.Context, snap roster.Snapshot) (roster.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return roster.SaveResult{}, err
	}
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	if repo.WriteErr != nil {
		return roster.SaveResult{}, repo.WriteErr
	}
	repo.table = copyTable(snap.Table)
	repo.writes++
	return roster.SaveResult{Path: "memory"}, nil
}

// Table returns the last written table.
func (repo *RosterRepository) Table() roster.Table {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()
	return copyTable(repo.table)
}

// Writes counts successful writes.
func (repo *RosterRepository) Writes() int {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()
	return repo.writes
}
