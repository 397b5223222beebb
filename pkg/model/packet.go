package model

// PacketKey identifies a work packet.
type PacketKey struct {
	CourierName string  `json:"courier_name"`
	Station     Station `json:"station"`
}

// KeyOf returns the packet key a task belongs to.
func KeyOf(t Task) PacketKey {
	return PacketKey{CourierName: t.Courier.Name, Station: t.Station}
}

// WorkPacket groups every task of one courier at one station. It is derived
// from the task list and never stored.
type WorkPacket struct {
	Key           PacketKey `json:"key"`
	Courier       Courier   `json:"courier"`
	Station       Station   `json:"station"`
	TotalPackages int       `json:"total_packages"`
	Status        Status    `json:"status"`
	Tasks         []Task    `json:"tasks"`
}
