package service

import (
	"context"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// ReceiptService posts goods receipts against issued purchase orders.
type ReceiptService struct {
	db        TxRunner
	receipts  ReceiptStore
	orders    PurchaseOrderStore
	numbering DocumentNumberer
	inventory InventorySink
	audit     AuditSink
	log       *logger.Logger
}

// NewReceiptService creates a new ReceiptService. The inventory sink may be
// nil when inventory tracking is not deployed.
func NewReceiptService(
	db TxRunner,
	receipts ReceiptStore,
	orders PurchaseOrderStore,
	numbering DocumentNumberer,
	inventory InventorySink,
	audit AuditSink,
	log *logger.Logger,
) *ReceiptService {
	return &ReceiptService{
		db:        db,
		receipts:  receipts,
		orders:    orders,
		numbering: numbering,
		inventory: inventory,
		audit:     audit,
		log:       log,
	}
}

// PostReceiptLine records received and accepted quantity for one PO line.
type PostReceiptLine struct {
	PurchaseOrderLineID string
	Quantity            float64
	AcceptedQuantity    float64
}

// PostReceiptRequest carries one goods receipt against a purchase order.
type PostReceiptRequest struct {
	CompanyID       string
	PurchaseOrderID string
	ReceivedBy      string
	Lines           []PostReceiptLine
}

// PostReceipt records a POSTED receipt in one unit of work: it accumulates
// received quantity on the PO lines, posts inventory movements for accepted
// goods on tracked lines, and recomputes the PO status (RECEIVED when every
// line is fully received, otherwise PARTIALLY_RECEIVED). The PO must be
// ISSUED or PARTIALLY_RECEIVED. Accepted quantity stays on the receipt line
// and feeds the 3-way match.
func (s *ReceiptService) PostReceipt(ctx context.Context, req PostReceiptRequest) (*repository.Receipt, error) {
	if len(req.Lines) == 0 {
		return nil, errors.InvalidInput("lines", "a receipt requires at least one line")
	}

	number, err := s.numbering.Generate(ctx, "GRN", "receipt", req.CompanyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "failed to generate receipt number")
	}

	var receipt *repository.Receipt
	err = s.db.InTransaction(ctx, func(q database.Querier) error {
		po, err := s.orders.GetWithLines(ctx, q, req.CompanyID, req.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.Status != repository.POStatusIssued && po.Status != repository.POStatusPartiallyReceived {
			return errors.InvalidState("purchase_order", "received against", string(po.Status))
		}

		poLines := make(map[string]*repository.PurchaseOrderLine, len(po.Lines))
		for _, line := range po.Lines {
			poLines[line.ID] = line
		}

		receipt = &repository.Receipt{
			CompanyID:       req.CompanyID,
			Number:          number,
			PurchaseOrderID: po.ID,
			Status:          repository.ReceiptPosted,
			ReceivedBy:      req.ReceivedBy,
		}
		for _, line := range req.Lines {
			poLine, ok := poLines[line.PurchaseOrderLineID]
			if !ok {
				return errors.InvalidInput("purchase_order_line_id", line.PurchaseOrderLineID)
			}
			if line.AcceptedQuantity < 0 || line.AcceptedQuantity > line.Quantity {
				return errors.InvalidInput("accepted_quantity", "must be between zero and the received quantity")
			}

			receipt.Lines = append(receipt.Lines, &repository.ReceiptLine{
				PurchaseOrderLineID: line.PurchaseOrderLineID,
				Quantity:            line.Quantity,
				AcceptedQuantity:    line.AcceptedQuantity,
			})

			if err := s.orders.AddReceivedQuantity(ctx, q, poLine.ID, line.Quantity); err != nil {
				return err
			}
			poLine.ReceivedQuantity += line.Quantity

			if s.inventory != nil && poLine.TrackInventory && line.AcceptedQuantity > 0 {
				if err := s.inventory.PostMovement(ctx, q, req.CompanyID, poLine.ID, line.AcceptedQuantity); err != nil {
					return err
				}
			}
		}

		if err := s.receipts.Create(ctx, q, receipt); err != nil {
			return err
		}

		status := repository.POStatusReceived
		for _, line := range po.Lines {
			if line.ReceivedQuantity < line.Quantity {
				status = repository.POStatusPartiallyReceived
				break
			}
		}
		return s.orders.UpdateStatus(ctx, q, req.CompanyID, po.ID, status)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("receipt_id", receipt.ID).
		Str("number", receipt.Number).
		Str("purchase_order_id", req.PurchaseOrderID).
		Msg("goods receipt posted")

	s.audit.Record(ctx, AuditEvent{
		CompanyID:  req.CompanyID,
		ActorID:    &req.ReceivedBy,
		ActorType:  "USER",
		ActionCode: "RECEIPT_POSTED",
		EntityType: repository.EntityPurchaseOrder,
		EntityID:   req.PurchaseOrderID,
		Payload:    map[string]any{"receiptId": receipt.ID},
	})

	return receipt, nil
}
