package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"ticketbooth/internal/domain"
)

func eventColumns() []string {
	return []string{
		"id", "name", "capacity", "price_cents", "currency", "max_per_booking",
		"date_scoped", "closing_deadline", "created_at", "updated_at",
	}
}

func TestEventRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		id      string
		mock    func(mock sqlmock.Sqlmock)
		check   func(t *testing.T, ev *domain.Event)
		wantErr error
	}{
		{
			name: "paid capped event",
			id:   "ev-1",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, capacity, price_cents`).
					WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows(eventColumns()).
						AddRow("ev-1", "Summer Workshop", 20, 1500, "EUR", 4, false, deadline, created, created))
			},
			check: func(t *testing.T, ev *domain.Event) {
				require.Equal(t, "Summer Workshop", ev.Name)
				require.NotNil(t, ev.Capacity)
				require.Equal(t, 20, *ev.Capacity)
				require.NotNil(t, ev.PriceCents)
				require.Equal(t, int64(1500), *ev.PriceCents)
				require.NotNil(t, ev.ClosingDeadline)
				require.False(t, ev.IsFree())
				require.True(t, ev.IsClosed(deadline.Add(time.Minute)))
				require.False(t, ev.IsClosed(deadline.Add(-time.Minute)))
			},
		},
		{
			name: "free unlimited event",
			id:   "ev-2",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, capacity, price_cents`).
					WithArgs("ev-2").
					WillReturnRows(sqlmock.NewRows(eventColumns()).
						AddRow("ev-2", "Open Day", nil, nil, "EUR", 0, true, nil, created, created))
			},
			check: func(t *testing.T, ev *domain.Event) {
				require.Nil(t, ev.Capacity)
				require.Nil(t, ev.PriceCents)
				require.Nil(t, ev.ClosingDeadline)
				require.True(t, ev.DateScoped)
				require.True(t, ev.IsFree())
			},
		},
		{
			name: "not found",
			id:   "ev-missing",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT id, name, capacity, price_cents`).
					WithArgs("ev-missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			ev, err := repo.GetByID(ctx, tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, ev)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
