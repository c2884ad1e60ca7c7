package load

import "time"

type Status string

const (
	StatusOpen      Status = "open"
	StatusAccepted  Status = "accepted"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
)

// Load is the central marketplace entity: a freight job posted by a shipper
// and fulfilled by at most one carrier.
// It mirrors the loads table and carries no JSON annotations so it can be
// reused by different presentation layers.
type Load struct {
	ID            string
	Title         string
	Origin        string
	Destination   string
	EquipmentType string
	Rate          float64
	Status        Status
	PostedBy      string
	AcceptedBy    *string
	CarrierLat    *float64
	CarrierLng    *float64
	PickupDate    *time.Time
	DeliveryDate  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateParams enumerates the fields a shipper supplies when posting a load.
type CreateParams struct {
	Title         string
	Origin        string
	Destination   string
	EquipmentType string
	Rate          float64
	PickupDate    *time.Time
	DeliveryDate  *time.Time
}

// PostedFilters narrows and orders a shipper's posted-load listing.
type PostedFilters struct {
	Status    Status
	SortBy    string
	SortOrder string
}

// Page is a paginated slice of loads.
type Page struct {
	Loads       []Load
	TotalPages  int
	CurrentPage int
}
