package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

const orderColumns = `id, order_number, status, items, email, user_id, address, shipping, payment,
	admin_status, shipper_name, stock_reserved, cancel_reason, created_at, updated_at, cancelled_at, cancelled_by`

// PostgresRepo stores orders in Postgres. Reads inside a unit of work take
// a row lock (FOR UPDATE) so a use case sees and writes a stable record.
type PostgresRepo struct{ DB *pgxpool.Pool }

func (r *PostgresRepo) Insert(ctx context.Context, o Order) error {
	items, address, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	_, err = postgres.Conn(ctx, r.DB).Exec(ctx, `
		INSERT INTO orders(id, order_number, status, items, email, email_normalized, user_id, address,
			shipping, payment, admin_status, shipper_name, stock_reserved, cancel_reason,
			created_at, updated_at, cancelled_at, cancelled_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.OrderNumber, string(o.Status), items, o.Email, NormalizeEmail(o.Email), o.UserID, address,
		nullableJSON(o.Shipping), nullableJSON(o.Payment), o.AdminStatus, o.ShipperName, o.StockReserved,
		o.CancelReason, o.CreatedAt, o.UpdatedAt, o.CancelledAt, kindPtr(o.CancelledBy),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if _, inTx := postgres.TxFrom(ctx); inTx {
		q += ` FOR UPDATE`
	}
	o, err := scanOrder(postgres.Conn(ctx, r.DB).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, err
}

// Update writes the mutable lifecycle columns. Items, email and address are
// immutable after creation and are never rewritten.
func (r *PostgresRepo) Update(ctx context.Context, o Order) error {
	ct, err := postgres.Conn(ctx, r.DB).Exec(ctx, `
		UPDATE orders SET status=$2, admin_status=$3, shipper_name=$4, stock_reserved=$5,
			cancel_reason=$6, updated_at=$7, cancelled_at=$8, cancelled_by=$9
		WHERE id=$1`,
		o.ID, string(o.Status), o.AdminStatus, o.ShipperName, o.StockReserved,
		o.CancelReason, o.UpdatedAt, o.CancelledAt, kindPtr(o.CancelledBy),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	return nil
}

func (r *PostgresRepo) ListByEmail(ctx context.Context, email string) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE email_normalized=$1
		ORDER BY created_at DESC, id DESC`, NormalizeEmail(email))
}

func (r *PostgresRepo) List(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := postgres.Conn(ctx, r.DB).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                 Order
		status            string
		items, address    []byte
		shipping, payment []byte
		cancelledAt       *time.Time
		cancelledBy       *string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &status, &items, &o.Email, &o.UserID, &address, &shipping, &payment,
		&o.AdminStatus, &o.ShipperName, &o.StockReserved, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
		&cancelledAt, &cancelledBy)
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode items of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return Order{}, fmt.Errorf("decode address of %s: %w", o.ID, err)
	}
	o.Shipping = shipping
	o.Payment = payment
	o.CancelledAt = cancelledAt
	if cancelledBy != nil {
		k := ActorKind(*cancelledBy)
		o.CancelledBy = &k
	}
	return o, nil
}

func encodeOrderJSON(o Order) (items, address []byte, err error) {
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, err
	}
	if address, err = json.Marshal(o.Address); err != nil {
		return nil, nil, err
	}
	return items, address, nil
}

func nullableJSON(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}

func kindPtr(k *ActorKind) *string {
	if k == nil {
		return nil
	}
	s := string(*k)
	return &s
}
