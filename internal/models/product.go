package models

// Product is the minimal catalog snapshot the order and inventory cores
// join against. Full catalog management lives outside this service.
type Product struct {
	BaseModel
	Name         string  `json:"name"`
	ItemCode     string  `gorm:"uniqueIndex" json:"item_code"`
	SetNumber    string  `gorm:"index" json:"set_number"`
	Theme        string  `json:"theme"`
	BasePrice    float64 `json:"base_price"`
	Currency     string  `json:"currency"`
	AllowCoupons bool    `gorm:"default:true" json:"allow_coupons"`
	IsActive     bool    `gorm:"default:true" json:"is_active"`
}
