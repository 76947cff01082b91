package models

// DriverProfile is what a passenger sees once a driver accepts: the vehicle and
// the details for paying by bank transfer.
type DriverProfile struct {
	VehicleModel     *string `json:"vehicle_model"`
	VehicleColor     *string `json:"vehicle_color"`
	VehiclePlate     *string `json:"vehicle_plate"`
	SBPRecipientName *string `json:"sbp_recipient_name"`
	SBPPhone         *string `json:"sbp_phone"`
	SBPBank          *string `json:"sbp_bank"`
}
