// Package dbtest provides transaction fakes for services that take a db.TxBeginner.
package dbtest

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Tx records how a transaction ended. Query methods are not implemented; services under
// test reach the database through stub query sets instead.
type Tx struct {
	pgx.Tx

	mu         sync.Mutex
	CommitErr  error
	OnCommit   func(*Tx)
	committed  bool
	rolledBack bool
}

// Commit marks the transaction committed unless CommitErr is set. OnCommit runs after
// a successful commit.
func (t *Tx) Commit(context.Context) error {
	t.mu.Lock()
	if t.committed || t.rolledBack {
		t.mu.Unlock()
		return pgx.ErrTxClosed
	}
	if t.CommitErr != nil {
		t.rolledBack = true
		t.mu.Unlock()
		return t.CommitErr
	}
	t.committed = true
	hook := t.OnCommit
	t.mu.Unlock()
	if hook != nil {
		hook(t)
	}
	return nil
}

// Rollback marks the transaction rolled back. It is a no-op after Commit.
func (t *Tx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

// Committed reports whether Commit succeeded.
func (t *Tx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// RolledBack reports whether the transaction was rolled back.
func (t *Tx) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}

// Beginner hands out fake transactions and remembers the options they were opened with.
type Beginner struct {
	mu        sync.Mutex
	Err       error
	CommitErr error
	OnCommit  func(*Tx)
	txs       []*Tx
	opts      []pgx.TxOptions
}

// BeginTx returns a new fake transaction.
func (b *Beginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	tx := &Tx{CommitErr: b.CommitErr, OnCommit: b.OnCommit}
	b.txs = append(b.txs, tx)
	b.opts = append(b.opts, opts)
	return tx, nil
}

// Last returns the most recent transaction, or nil.
func (b *Beginner) Last() *Tx {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.txs) == 0 {
		return nil
	}
	return b.txs[len(b.txs)-1]
}

// LastOptions returns the options of the most recent transaction.
func (b *Beginner) LastOptions() pgx.TxOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.opts) == 0 {
		return pgx.TxOptions{}
	}
	return b.opts[len(b.opts)-1]
}

// Count returns how many transactions were opened.
func (b *Beginner) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.txs)
}
