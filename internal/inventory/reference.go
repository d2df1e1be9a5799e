package inventory

import "fmt"

// ReferenceKind names the document type a ledger row points at.
type ReferenceKind string

const (
	RefSalesOrder    ReferenceKind = "SALES_ORDER"
	RefPurchaseOrder ReferenceKind = "PURCHASE_ORDER"
	RefGRN           ReferenceKind = "GRN"
	RefDispatch      ReferenceKind = "DISPATCH"
	RefTransfer      ReferenceKind = "TRANSFER"
	RefAdjustment    ReferenceKind = "ADJUSTMENT"
	RefReturn        ReferenceKind = "RETURN"
)

// Reference links a ledger row to the document that caused it. The set of
// implementations is closed: only the Ref types below satisfy it.
type Reference interface {
	Kind() ReferenceKind
	ID() int64
	isReference()
}

type (
	SalesOrderRef    int64
	PurchaseOrderRef int64
	GRNRef           int64
	DispatchRef      int64
	TransferRef      int64
	AdjustmentRef    int64
	ReturnRef        int64
)

func (SalesOrderRef) Kind() ReferenceKind    { return RefSalesOrder }
func (PurchaseOrderRef) Kind() ReferenceKind { return RefPurchaseOrder }
func (GRNRef) Kind() ReferenceKind           { return RefGRN }
func (DispatchRef) Kind() ReferenceKind      { return RefDispatch }
func (TransferRef) Kind() ReferenceKind      { return RefTransfer }
func (AdjustmentRef) Kind() ReferenceKind    { return RefAdjustment }
func (ReturnRef) Kind() ReferenceKind        { return RefReturn }

func (r SalesOrderRef) ID() int64    { return int64(r) }
func (r PurchaseOrderRef) ID() int64 { return int64(r) }
func (r GRNRef) ID() int64           { return int64(r) }
func (r DispatchRef) ID() int64      { return int64(r) }
func (r TransferRef) ID() int64      { return int64(r) }
func (r AdjustmentRef) ID() int64    { return int64(r) }
func (r ReturnRef) ID() int64        { return int64(r) }

func (SalesOrderRef) isReference()    {}
func (PurchaseOrderRef) isReference() {}
func (GRNRef) isReference()           {}
func (DispatchRef) isReference()      {}
func (TransferRef) isReference()      {}
func (AdjustmentRef) isReference()    {}
func (ReturnRef) isReference()        {}

// ParseReference rebuilds a Reference from its stored kind and id.
func ParseReference(kind string, id int64) (Reference, error) {
	switch ReferenceKind(kind) {
	case RefSalesOrder:
		return SalesOrderRef(id), nil
	case RefPurchaseOrder:
		return PurchaseOrderRef(id), nil
	case RefGRN:
		return GRNRef(id), nil
	case RefDispatch:
		return DispatchRef(id), nil
	case RefTransfer:
		return TransferRef(id), nil
	case RefAdjustment:
		return AdjustmentRef(id), nil
	case RefReturn:
		return ReturnRef(id), nil
	}
	return nil, fmt.Errorf("inventory: unknown reference kind %q", kind)
}
