package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/station-pick/internal/core/domain"
)

const errDuplicateEntry = 1062

// MySQLAdapter serves the inventory backend straight from the site database.
// Quantity bounds are enforced by conditional UPDATEs inside one transaction,
// so a rejected movement leaves no rows behind.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Locate(ctx context.Context, material string, inStation bool) ([]domain.Tray, error) {
	location := domain.LocationStorage
	if inStation {
		location = domain.LocationStation
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, code, location, material, description, available_quantity, inbound_date
		FROM trays
		WHERE material = ? AND location = ?
		ORDER BY inbound_date, code`,
		material, location,
	)
	if err != nil {
		return nil, wrap("query trays", err)
	}
	defer rows.Close()

	var trays []domain.Tray
	for rows.Next() {
		var t domain.Tray
		if err := rows.Scan(&t.ID, &t.Code, &t.Location, &t.Material, &t.Description,
			&t.AvailableQuantity, &t.InboundDate); err != nil {
			return nil, wrap("scan tray", err)
		}
		trays = append(trays, t)
	}
	return trays, wrap("iterate trays", rows.Err())
}

func (m *MySQLAdapter) FindOrder(ctx context.Context, trayID string, filter domain.OrderFilter) (*domain.RetrievalOrder, error) {
	query := `
		SELECT id, tray_id, status, station_name, created_at, updated_at
		FROM retrieval_orders
		WHERE tray_id = ? AND status <> 'completed'`
	args := []any{trayID}
	if filter.ReadyOnly {
		query += ` AND status = ?`
		args = append(args, domain.OrderStatusActive)
	}
	query += ` ORDER BY updated_at ASC LIMIT 1`

	order, err := scanOrder(m.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("query order", err)
	}
	return &order, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (domain.RetrievalOrder, error) {
	order, err := scanOrder(m.db.QueryRowContext(ctx, `
		SELECT id, tray_id, status, station_name, created_at, updated_at
		FROM retrieval_orders WHERE id = ?`, orderID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RetrievalOrder{}, domain.NotFoundf("order %s", orderID)
	}
	if err != nil {
		return domain.RetrievalOrder{}, wrap("query order", err)
	}
	return order, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, trayID string) (domain.RetrievalOrder, error) {
	var exists int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trays WHERE id = ?`, trayID).Scan(&exists)
	if err != nil {
		return domain.RetrievalOrder{}, wrap("query tray", err)
	}
	if exists == 0 {
		return domain.RetrievalOrder{}, domain.NotFoundf("tray %s", trayID)
	}

	result, err := m.db.ExecContext(ctx, `
		INSERT INTO retrieval_orders (tray_id, status) VALUES (?, ?)`,
		trayID, domain.OrderStatusRequested,
	)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
		return domain.RetrievalOrder{}, domain.Conflictf("tray %s already has an open order", trayID)
	}
	if err != nil {
		return domain.RetrievalOrder{}, wrap("insert order", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.RetrievalOrder{}, wrap("order id", err)
	}
	return m.GetOrder(ctx, strconv.FormatInt(id, 10))
}

func (m *MySQLAdapter) CompleteOrder(ctx context.Context, orderID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer tx.Rollback()

	var trayID string
	var status domain.OrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT tray_id, status FROM retrieval_orders WHERE id = ? FOR UPDATE`, orderID,
	).Scan(&trayID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("order %s", orderID)
	}
	if err != nil {
		return wrap("lock order", err)
	}
	if status == domain.OrderStatusCompleted {
		return domain.Conflictf("order %s already completed", orderID)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE retrieval_orders SET status = ? WHERE id = ?`,
		domain.OrderStatusCompleted, orderID,
	); err != nil {
		return wrap("complete order", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE trays SET location = ? WHERE id = ?`,
		domain.LocationStorage, trayID,
	); err != nil {
		return wrap("return tray", err)
	}

	return wrap("commit", tx.Commit())
}

// Deliver plays the robot's part for sites without one: the requested
// order becomes active at stationName and its tray moves to the station.
func (m *MySQLAdapter) Deliver(ctx context.Context, orderID, stationName string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE retrieval_orders SET status = ?, station_name = ?
		WHERE id = ? AND status = ?`,
		domain.OrderStatusActive, stationName, orderID, domain.OrderStatusRequested,
	)
	if err != nil {
		return wrap("deliver order", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return wrap("deliver order", err)
	} else if n == 0 {
		return domain.Conflictf("order %s is not awaiting delivery", orderID)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE trays SET location = ?
		WHERE id = (SELECT tray_id FROM retrieval_orders WHERE id = ?)`,
		domain.LocationStation, orderID,
	); err != nil {
		return wrap("move tray", err)
	}

	return wrap("commit", tx.Commit())
}

func (m *MySQLAdapter) SubmitTransaction(ctx context.Context, txn domain.Transaction) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin tx", err)
	}
	defer tx.Rollback()

	if txn.TrayID != "" {
		// quantity is signed: outbound entries carry a negative delta.
		result, err := tx.ExecContext(ctx, `
			UPDATE trays
			SET available_quantity = available_quantity + ?
			WHERE id = ? AND material = ? AND available_quantity + ? >= 0`,
			txn.Quantity, txn.TrayID, txn.Material, txn.Quantity,
		)
		if err != nil {
			return wrap("update tray", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return domain.Validationf("tray %s cannot move %d of %s", txn.TrayID, txn.Quantity, txn.Material)
		}
	}

	if txn.Type == domain.TransactionOutbound && txn.SapOrderRef != "" {
		result, err := tx.ExecContext(ctx, `
			UPDATE sap_order_lines
			SET consumed_quantity = consumed_quantity - ?
			WHERE order_ref = ? AND material = ? AND required_quantity - consumed_quantity >= -?`,
			txn.Quantity, txn.SapOrderRef, txn.Material, txn.Quantity,
		)
		if err != nil {
			return wrap("update order line", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return domain.Validationf("order %s line %s cannot take %d", txn.SapOrderRef, txn.Material, -txn.Quantity)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, order_id, tray_id, material, quantity, type, transaction_date, sap_order_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.OrderID, txn.TrayID, txn.Material, txn.Quantity, txn.Type, txn.Date, txn.SapOrderRef,
	)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
		return domain.Conflictf("transaction %s already recorded", txn.ID)
	}
	if err != nil {
		return wrap("insert transaction", err)
	}

	return wrap("commit", tx.Commit())
}

// ReconcileReport compares SAP quantities with what the trays hold.
func (m *MySQLAdapter) ReconcileReport(ctx context.Context, query domain.ReconcileQuery) ([]domain.ReconciliationRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT s.material, s.description, s.sap_quantity, COALESCE(SUM(t.available_quantity), 0), s.updated_at
		FROM sap_quantities s
		LEFT JOIN trays t ON t.material = s.material
		WHERE ? = '' OR s.material = ?
		GROUP BY s.material, s.description, s.sap_quantity, s.updated_at
		ORDER BY s.material`,
		query.Material, query.Material,
	)
	if err != nil {
		return nil, wrap("query reconcile", err)
	}
	defer rows.Close()

	var records []domain.ReconciliationRecord
	for rows.Next() {
		var r domain.ReconciliationRecord
		if err := rows.Scan(&r.Material, &r.Description, &r.SapQuantity, &r.ItemQuantity, &r.UpdatedAt); err != nil {
			return nil, wrap("scan reconcile", err)
		}
		r.Difference, r.Status = domain.Classify(r.SapQuantity, r.ItemQuantity)
		if query.Status != "" && r.Status != query.Status {
			continue
		}
		records = append(records, r)
	}
	return records, wrap("iterate reconcile", rows.Err())
}

func (m *MySQLAdapter) ListSapOrders(ctx context.Context, status string) ([]domain.SapOrder, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT order_ref,
			COUNT(*),
			SUM(CASE WHEN consumed_quantity < required_quantity THEN 1 ELSE 0 END),
			SUM(CASE WHEN consumed_quantity >= required_quantity THEN 1 ELSE 0 END),
			MAX(order_status)
		FROM sap_order_lines
		WHERE ? = '' OR order_status = ?
		GROUP BY order_ref
		ORDER BY order_ref`,
		status, status,
	)
	if err != nil {
		return nil, wrap("query sap orders", err)
	}
	defer rows.Close()

	var orders []domain.SapOrder
	for rows.Next() {
		var o domain.SapOrder
		if err := rows.Scan(&o.Ref, &o.TotalItems, &o.PendingItems, &o.CompletedItems, &o.Status); err != nil {
			return nil, wrap("scan sap order", err)
		}
		orders = append(orders, o)
	}
	return orders, wrap("iterate sap orders", rows.Err())
}

func (m *MySQLAdapter) OrderLines(ctx context.Context, orderRef string) ([]domain.OrderLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT order_ref, material, description, required_quantity, consumed_quantity
		FROM sap_order_lines
		WHERE order_ref = ?
		ORDER BY material`,
		orderRef,
	)
	if err != nil {
		return nil, wrap("query order lines", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderRef, &l.Material, &l.Description, &l.RequiredQuantity, &l.ConsumedQuantity); err != nil {
			return nil, wrap("scan order line", err)
		}
		lines = append(lines, l)
	}
	return lines, wrap("iterate order lines", rows.Err())
}

func scanOrder(row *sql.Row) (domain.RetrievalOrder, error) {
	var o domain.RetrievalOrder
	var id int64
	err := row.Scan(&id, &o.TrayID, &o.Status, &o.StationName, &o.CreatedAt, &o.UpdatedAt)
	o.ID = strconv.FormatInt(id, 10)
	return o, err
}

// wrap tags lost connections as transient so callers may retry reads.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
