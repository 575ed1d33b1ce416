package catalog

import "context"

type ProductStatus string

const (
	ProductAvailable ProductStatus = "available"
	ProductReserved  ProductStatus = "reserved"
	ProductSold      ProductStatus = "sold"
)

// Catalog is the product service as seen by the lifecycle engines. Calls
// are best-effort projections of order state and carry no CAS protection.
type Catalog interface {
	UpdateProductStatus(ctx context.Context, productID string, status ProductStatus) error
}
