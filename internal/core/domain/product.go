package domain

import (
	"strconv"
	"strings"
	"time"
)

// Product is the canonical record parsed from a datasheet. SKU is unique.
type Product struct {
	ID                   int64     `json:"id"`
	SKU                  string    `json:"sku"`
	PrimaryProductNumber string    `json:"primary_product_number,omitempty"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	PowerW               *float64  `json:"power_w,omitempty"`
	VoltageV             *float64  `json:"voltage_v,omitempty"`
	LuminousFluxLm       *float64  `json:"luminous_flux_lm,omitempty"`
	ColorTemperatureK    string    `json:"color_temperature,omitempty"`
	ColorRendering       string    `json:"color_rendering,omitempty"`
	LifetimeHours        *float64  `json:"lifetime_hours,omitempty"`
	IPRating             string    `json:"ip_rating,omitempty"`
	ApplicationArea      string    `json:"application_area,omitempty"`
	Certifications       []string  `json:"certifications,omitempty"`
	SourceDocument       string    `json:"source_document"`
	UpdatedAt            time.Time `json:"updated_at,omitempty"`
}

// Attributes flattens the structured fields for result payloads.
func (p Product) Attributes() map[string]any {
	attrs := map[string]any{}
	if p.PrimaryProductNumber != "" {
		attrs["primary_product_number"] = p.PrimaryProductNumber
	}
	if p.PowerW != nil {
		attrs["power_w"] = *p.PowerW
	}
	if p.VoltageV != nil {
		attrs["voltage_v"] = *p.VoltageV
	}
	if p.LuminousFluxLm != nil {
		attrs["luminous_flux_lm"] = *p.LuminousFluxLm
	}
	if p.ColorTemperatureK != "" {
		attrs["color_temperature"] = p.ColorTemperatureK
	}
	if p.ColorRendering != "" {
		attrs["color_rendering"] = p.ColorRendering
	}
	if p.LifetimeHours != nil {
		attrs["lifetime_hours"] = *p.LifetimeHours
	}
	if p.IPRating != "" {
		attrs["ip_rating"] = p.IPRating
	}
	if p.ApplicationArea != "" {
		attrs["application_area"] = p.ApplicationArea
	}
	if len(p.Certifications) > 0 {
		attrs["certifications"] = append([]string(nil), p.Certifications...)
	}
	return attrs
}

// Summary renders the name and key attributes as one line of prose.
func (p Product) Summary() string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.SKU != "" {
		b.WriteString(" (SKU " + p.SKU + ")")
	}
	b.WriteString(".")
	if p.PowerW != nil {
		b.WriteString(" Power: " + formatNumber(*p.PowerW) + " W.")
	}
	if p.LuminousFluxLm != nil {
		b.WriteString(" Luminous flux: " + formatNumber(*p.LuminousFluxLm) + " lm.")
	}
	if p.ColorTemperatureK != "" {
		b.WriteString(" Color temperature: " + p.ColorTemperatureK + ".")
	}
	if p.LifetimeHours != nil {
		b.WriteString(" Lifetime: " + formatNumber(*p.LifetimeHours) + " h.")
	}
	if p.IPRating != "" {
		b.WriteString(" Protection: " + p.IPRating + ".")
	}
	if p.ApplicationArea != "" {
		b.WriteString(" Application: " + p.ApplicationArea + ".")
	}
	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ProductChunk is one embedded slice of a product description.
type ProductChunk struct {
	ProductID      int64
	SKU            string
	ProductName    string
	SourceDocument string
	ChunkIndex     int
	Text           string
	Attributes     map[string]any
}
