package nanostore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rl1809/station-pick/internal/core/domain"
	"github.com/rl1809/station-pick/internal/port"
)

var _ port.InventoryBackend = (*Client)(nil)

// maxPages bounds tray listing for a single material.
const maxPages = 20

func (c *Client) Locate(ctx context.Context, material string, inStation bool) ([]domain.Tray, error) {
	var trays []domain.Tray
	for page := 0; page < maxPages; page++ {
		query := url.Values{
			"in_station":  {strconv.FormatBool(inStation)},
			"item_id":     {material},
			"order_type":  {"outbound"},
			"like":        {"false"},
			"num_records": {strconv.Itoa(pageSize)},
			"offset":      {strconv.Itoa(page * pageSize)},
			"order_flow":  {"fifo"},
		}
		records, err := list[trayRecord](ctx, c, "trays_for_order", query)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			trays = append(trays, r.toDomain(inStation))
		}
		if len(records) < pageSize {
			break
		}
	}
	return trays, nil
}

func (c *Client) FindOrder(ctx context.Context, trayID string, filter domain.OrderFilter) (*domain.RetrievalOrder, error) {
	query := url.Values{
		"tray_id":        {trayID},
		"order_by_field": {"updated_at"},
		"order_by_type":  {"ASC"},
	}
	if filter.ReadyOnly {
		query.Set("tray_status", trayReadyToUse)
	}
	records, err := list[orderRecord](ctx, c, "orders", query)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if order := r.toDomain(); !order.Completed() {
			return &order, nil
		}
	}
	return nil, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.RetrievalOrder, error) {
	records, err := list[orderRecord](ctx, c, "orders", url.Values{"record_id": {orderID}})
	if err != nil {
		return domain.RetrievalOrder{}, err
	}
	if len(records) == 0 {
		return domain.RetrievalOrder{}, domain.NotFoundf("order %s", orderID)
	}
	return records[0].toDomain(), nil
}

func (c *Client) CreateOrder(ctx context.Context, trayID string) (domain.RetrievalOrder, error) {
	query := url.Values{
		"tray_id":            {trayID},
		"user_id":            {c.UserID},
		"auto_complete_time": {strconv.Itoa(c.AutoCompleteTime)},
	}
	var resp envelope[orderRecord]
	if err := c.do(ctx, http.MethodPost, "orders", query, &resp); err != nil {
		return domain.RetrievalOrder{}, err
	}
	if len(resp.Records) == 0 {
		return domain.RetrievalOrder{}, fmt.Errorf("nanostore create order for tray %s: empty response", trayID)
	}
	order := resp.Records[0].toDomain()
	if order.TrayID == "" {
		order.TrayID = trayID
	}
	return order, nil
}

func (c *Client) CompleteOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPatch, "orders/complete", url.Values{"record_id": {orderID}}, nil)
}

// SubmitTransaction posts a ledger entry. The endpoint takes no tray parameter.
func (c *Client) SubmitTransaction(ctx context.Context, tx domain.Transaction) error {
	query := url.Values{
		"order_id":                  {tx.OrderID},
		"item_id":                   {tx.Material},
		"transaction_item_quantity": {strconv.Itoa(tx.Quantity)},
		"transaction_type":          {string(tx.Type)},
	}
	if !tx.Date.IsZero() {
		query.Set("transaction_date", tx.Date.Format(dateLayout))
	}
	if tx.SapOrderRef != "" {
		query.Set("sap_order_reference", tx.SapOrderRef)
	}
	return c.do(ctx, http.MethodPost, "transaction", query, nil)
}

func (c *Client) ReconcileReport(ctx context.Context, q domain.ReconcileQuery) ([]domain.ReconciliationRecord, error) {
	query := url.Values{
		"num_records": {strconv.Itoa(reportPageSize)},
		"offset":      {"0"},
	}
	if q.Material != "" {
		query.Set("material", q.Material)
	}
	if q.Status != "" {
		query.Set("reconcile_status", string(q.Status))
	}
	records, err := list[reconcileRecord](ctx, c, "sap_reconcile/report", query)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReconciliationRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) ListSapOrders(ctx context.Context, status string) ([]domain.SapOrder, error) {
	if status == "" {
		status = "active"
	}
	records, err := list[sapOrderRecord](ctx, c, "sap_orders/get_unique_sap_orders", url.Values{"order_status": {status}})
	if err != nil {
		return nil, err
	}
	out := make([]domain.SapOrder, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) OrderLines(ctx context.Context, orderRef string) ([]domain.OrderLine, error) {
	records, err := list[orderLineRecord](ctx, c, "sap_orders", url.Values{"order_ref": {orderRef}})
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderLine, 0, len(records))
	for _, r := range records {
		line := r.toDomain()
		if line.OrderRef == "" {
			line.OrderRef = orderRef
		}
		out = append(out, line)
	}
	return out, nil
}
