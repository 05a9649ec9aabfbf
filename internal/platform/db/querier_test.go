package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Querier = (*pgxpool.Pool)(nil)

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get fax: %w", pgx.ErrNoRows)) {
		t.Error("wrapped ErrNoRows should be not found")
	}
	if IsNotFound(fmt.Errorf("boom")) {
		t.Error("other errors are not not-found")
	}
}
