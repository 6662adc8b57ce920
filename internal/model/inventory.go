package model

// Inventory kinds. Each kind owns an independent counter space in the
// `inventory` table, keyed by (kind, resource_id). For TICKET the
// resource id is the event id; for the other kinds it is the id of
// the product, vendor spot or volunteer shift row.
const (
    KindTicket         = "TICKET"
    KindProduct        = "PRODUCT"
    KindVendorSpot     = "VENDOR_SPOT"
    KindVolunteerShift = "VOLUNTEER_SHIFT"
)

// ValidKind reports whether s names one of the four inventory kinds.
func ValidKind(s string) bool {
    switch s {
    case KindTicket, KindProduct, KindVendorSpot, KindVolunteerShift:
        return true
    }
    return false
}
