package dto

type DeviceEvent struct {
	Event       string `json:"event"`
	PackageName string `json:"packageName,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

type DeviceEventRecord struct {
	ID          uint   `json:"id"`
	Event       string `json:"event"`
	PackageName string `json:"packageName,omitempty"`
	Detail      string `json:"detail,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}
